package mail

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"github.com/connorward/mycoshop/internal/pkg/env"
)

// SMTPMailer sends emails via SMTP
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", to, addr)
	}
	return err
}

// FulfillmentEmail holds the personalization for an order delivery email.
type FulfillmentEmail struct {
	ProductName  string
	OrderID      string
	PDFLink      string
	EPUBLink     string
	SupportEmail string
}

// Subject returns the fulfillment email subject line.
func (f FulfillmentEmail) Subject() string {
	return fmt.Sprintf("Your order %s: %s", f.OrderID, f.ProductName)
}

// BodyHTML renders the fulfillment email body.
func (f FulfillmentEmail) BodyHTML() string {
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString(fmt.Sprintf("<p>Thank you for purchasing <strong>%s</strong>.</p>", f.ProductName))
	b.WriteString(fmt.Sprintf("<p>Order reference: %s</p>", f.OrderID))
	if f.PDFLink != "" {
		b.WriteString(fmt.Sprintf(`<p><a href="%s">Download PDF</a></p>`, f.PDFLink))
	}
	if f.EPUBLink != "" {
		b.WriteString(fmt.Sprintf(`<p><a href="%s">Download EPUB</a></p>`, f.EPUBLink))
	}
	b.WriteString("<p>Download links expire after a few days.</p>")
	if f.SupportEmail != "" {
		b.WriteString(fmt.Sprintf("<p>Questions? Contact %s</p>", f.SupportEmail))
	}
	b.WriteString("</body></html>")
	return b.String()
}
