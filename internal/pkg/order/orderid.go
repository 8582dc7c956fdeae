package order

import (
	"crypto/rand"
	"fmt"
)

const (
	orderIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderIDLength   = 8
)

// NewOrderID generates the customer-visible order reference. It is random,
// not guaranteed globally unique; the invoice is keyed by email, the order id
// only shows up in emails and redirect URLs.
func NewOrderID() (string, error) {
	buf := make([]byte, orderIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate order id: %w", err)
	}
	for i, b := range buf {
		buf[i] = orderIDAlphabet[int(b)%len(orderIDAlphabet)]
	}
	return string(buf), nil
}
