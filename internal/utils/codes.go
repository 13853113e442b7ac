package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateOrderCode returns a short human-shareable order token, e.g.
// "K7QX2MRP". Uniqueness is enforced by the database index; callers
// retry on conflict.
func GenerateOrderCode() string {
	return randomCode(8)
}

// GenerateInvoiceNumber returns an invoice number of the form
// "INV-20260115-4F7K".
func GenerateInvoiceNumber(now time.Time) string {
	return fmt.Sprintf("INV-%s-%s", now.Format("20060102"), randomCode(4))
}

func randomCode(length int) string {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the platform is broken;
			// fall back to a time-derived index.
			n = big.NewInt(time.Now().UnixNano() % int64(len(codeAlphabet)))
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf)
}
