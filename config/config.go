package config

import (
	"fmt"
	"sync"

	"github.com/joho/godotenv"
)

var loadOnce sync.Once

// LoadEnv loads variables from a .env file if one is present. Missing files are
// fine in production where the environment is injected by the platform.
func LoadEnv() {
	loadOnce.Do(func() {
		if err := godotenv.Load(); err != nil {
			fmt.Println("No .env file found, using environment variables")
		}
	})
}
