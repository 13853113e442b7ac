package models

import "time"

// Voucher discount types.
const (
	VoucherTypePercent = "percent"
	VoucherTypeFixed   = "fixed"
)

// Voucher is a discount code applied at checkout.
type Voucher struct {
	BaseModel
	Code         string     `gorm:"uniqueIndex" json:"code"`
	DiscountType string     `json:"discount_type"`
	Value        float64    `json:"value"`
	ExpiresAt    *time.Time `json:"expires_at"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`
}

// Expired reports whether the voucher is past its expiry date.
func (v *Voucher) Expired(now time.Time) bool {
	return v.ExpiresAt != nil && now.After(*v.ExpiresAt)
}

// DiscountOn returns the discount this voucher grants on the given
// subtotal, never exceeding the subtotal itself.
func (v *Voucher) DiscountOn(subtotal float64) float64 {
	var discount float64
	switch v.DiscountType {
	case VoucherTypePercent:
		discount = subtotal * v.Value / 100
	case VoucherTypeFixed:
		discount = v.Value
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}
