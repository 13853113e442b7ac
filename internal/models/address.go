package models

import "github.com/google/uuid"

// State is a static region lookup carrying the delivery fee applied
// to orders shipped there.
type State struct {
	BaseModel
	NameEn      string  `json:"name_en"`
	NameAr      string  `json:"name_ar"`
	DeliveryFee float64 `json:"delivery_fee"`
}

// UserAddress is a saved delivery/billing address. The state supplies
// the delivery-fee lookup key; billing fields are copied onto invoices
// at creation time.
type UserAddress struct {
	BaseModel
	UserID        uuid.UUID  `gorm:"type:uuid;index" json:"user_id"`
	StateID       *uuid.UUID `gorm:"type:uuid" json:"state_id"`
	State         *State     `json:"state,omitempty"`
	Label         string     `json:"label"`
	RecipientName string     `json:"recipient_name"`
	Phone         string     `json:"phone"`
	AddressLine   string     `json:"address_line"`
	City          string     `json:"city"`
	District      string     `json:"district"`
	PostalCode    string     `json:"postal_code"`
	IsDefault     bool       `json:"is_default"`
	IsDeleted     bool       `gorm:"index" json:"is_deleted"`
}
