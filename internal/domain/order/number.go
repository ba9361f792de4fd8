package order

import (
	"crypto/rand"
	"time"
)

const numberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewNumber returns a customer-facing order number, ORD-yyyymmddHHMMSS-XXXX.
func NewNumber(now time.Time) string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		panic(err)
	}
	for i, b := range suffix {
		suffix[i] = numberAlphabet[int(b)%len(numberAlphabet)]
	}
	return "ORD-" + now.UTC().Format("20060102150405") + "-" + string(suffix)
}
