package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wanderstay/platform/config"
	"github.com/wanderstay/platform/config/db"
	redisclient "github.com/wanderstay/platform/config/redis"
	"github.com/wanderstay/platform/logger"
	"github.com/wanderstay/platform/middlewares/cors"
	"github.com/wanderstay/platform/routes"
)

func init() {
	logger.InitLoggers()
	config.LoadEnv()
}

func sweepInterval() time.Duration {
	minutes := 15
	if raw := os.Getenv("PAYOUT_SWEEP_INTERVAL_MINUTES"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			minutes = parsed
		}
	}
	return time.Duration(minutes) * time.Minute
}

func main() {
	db.Connect()
	defer db.Close()
	defer redisclient.CloseRedis()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New())

	routes.RegisterWebhookRoutes(r)
	payoutService := routes.NewPayoutService()
	routes.RegisterPayoutRoutes(r, payoutService)
	routes.RegisterRefundRoutes(r)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok from payments service"})
	})

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	go payoutService.RunScheduler(schedulerCtx, sweepInterval())

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		fmt.Printf("Go Server listening on :%s\n", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Server failed to listen: %v\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	fmt.Println("Shutting down Go server...")

	stopScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		fmt.Printf("Go Server forced to shutdown: %v\n", err)
	}

	fmt.Println("Go Server exited gracefully.")
}
