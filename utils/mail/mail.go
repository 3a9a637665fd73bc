package mail

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	gomail "gopkg.in/gomail.v2"

	"github.com/wanderstay/platform/config"
	"github.com/wanderstay/platform/logger"
)

// Email template paths
const (
	paymentReceiptTemplate = "templates/email/payment_receipt.html"
	payoutNoticeTemplate   = "templates/email/payout_notice.html"
	refundDecisionTemplate = "templates/email/refund_decision.html"
)

func init() {
	config.LoadEnv()
}

// --- Helper function to send email using gomail ---
func sendEmail(toEmail, subject, templatePath string, data interface{}) error {
	mailer := gomail.NewMessage()
	mailer.SetHeader("From", os.Getenv("FROM_EMAIL"))
	mailer.SetHeader("To", toEmail)
	mailer.SetHeader("Subject", subject)

	t, err := template.ParseFiles(templatePath)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to parse email template %s: %v", templatePath, err)
		return fmt.Errorf("failed to parse email template: %w", err)
	}

	var body bytes.Buffer
	if err := t.Execute(&body, data); err != nil {
		logger.ErrorLogger.Errorf("Failed to execute email template %s: %v", templatePath, err)
		return fmt.Errorf("failed to execute email template: %w", err)
	}

	mailer.SetBody("text/html", body.String())

	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		logger.ErrorLogger.Errorf("Invalid SMTP port: %v", err)
		return fmt.Errorf("invalid SMTP port: %w", err)
	}

	smtpHost := os.Getenv("SMTP_HOST")
	smtpUsername := os.Getenv("SMTP_USERNAME")
	smtpPassword := os.Getenv("SMTP_PASSWORD")

	dialer := gomail.NewDialer(smtpHost, port, smtpUsername, smtpPassword)

	dialer.TLSConfig = &tls.Config{
		InsecureSkipVerify: false,
		ServerName:         smtpHost,
	}

	if err := dialer.DialAndSend(mailer); err != nil {
		logger.ErrorLogger.Errorf("Failed to send email to %s: %v", toEmail, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	logger.InfoLogger.Printf("Sent email to %s (%s)", toEmail, subject)
	return nil
}

// SendPaymentReceipt confirms a successful booking payment to the guest.
func SendPaymentReceipt(email string, bookingID uuid.UUID, amount float64, currency string) error {
	logger.InfoLogger.Infof("Sending payment receipt to %s for booking %s", email, bookingID)
	data := struct {
		BookingID string
		Amount    string
		Currency  string
		Year      int
	}{
		BookingID: bookingID.String(),
		Amount:    fmt.Sprintf("%.2f", amount),
		Currency:  currency,
		Year:      time.Now().Year(),
	}
	return sendEmail(email, "Your booking is confirmed", paymentReceiptTemplate, data)
}

// SendPayoutNotice informs a realtor their payout was released.
func SendPayoutNotice(email string, bookingID uuid.UUID, amount float64, currency string) error {
	logger.InfoLogger.Infof("Sending payout notice to %s for booking %s", email, bookingID)
	data := struct {
		BookingID string
		Amount    string
		Currency  string
		Year      int
	}{
		BookingID: bookingID.String(),
		Amount:    fmt.Sprintf("%.2f", amount),
		Currency:  currency,
		Year:      time.Now().Year(),
	}
	return sendEmail(email, "Your payout is on its way", payoutNoticeTemplate, data)
}

// SendRefundDecision informs the guest of the realtor's decision on their
// refund request.
func SendRefundDecision(email string, bookingID uuid.UUID, approved bool, note string, amount float64, currency string) error {
	logger.InfoLogger.Infof("Sending refund decision to %s for booking %s (approved=%t)", email, bookingID, approved)
	subject := "Your refund request was declined"
	if approved {
		subject = "Your refund request was approved"
	}
	data := struct {
		BookingID string
		Approved  bool
		Note      string
		Amount    string
		Currency  string
		Year      int
	}{
		BookingID: bookingID.String(),
		Approved:  approved,
		Note:      note,
		Amount:    fmt.Sprintf("%.2f", amount),
		Currency:  currency,
		Year:      time.Now().Year(),
	}
	return sendEmail(email, subject, refundDecisionTemplate, data)
}

// Mailer adapts the package functions to the notifier interfaces consumed by
// the controllers.
type Mailer struct{}

func NewMailer() *Mailer {
	return &Mailer{}
}

func (m *Mailer) SendPaymentReceipt(to string, bookingID uuid.UUID, amount float64, currency string) error {
	return SendPaymentReceipt(to, bookingID, amount, currency)
}

func (m *Mailer) SendPayoutNotice(to string, bookingID uuid.UUID, amount float64, currency string) error {
	return SendPayoutNotice(to, bookingID, amount, currency)
}

func (m *Mailer) SendRefundDecision(to string, bookingID uuid.UUID, approved bool, note string, amount float64, currency string) error {
	return SendRefundDecision(to, bookingID, approved, note, amount, currency)
}
