package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Invoice statuses.
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
	InvoiceStatusRefunded  = "refunded"
)

// Invoice payment statuses.
const (
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPartial  = "partial"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Invoice is a billing document, created manually or derived from an
// order. Billing fields are copied at creation time so later address
// edits never change issued invoices. IsManual selects the total
// formula: manual invoices use subtotal - discount + delivery fee,
// order-derived ones use subtotal + tax - discount + shipping.
type Invoice struct {
	BaseModel
	InvoiceNumber string     `gorm:"uniqueIndex" json:"invoice_number"`
	UserID        *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	OrderID       *uuid.UUID `gorm:"type:uuid;index" json:"order_id"`

	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`

	BillingAddressLine string `json:"billing_address_line"`
	BillingCity        string `json:"billing_city"`
	BillingDistrict    string `json:"billing_district"`
	BillingPostalCode  string `json:"billing_postal_code"`

	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discount_amount"`
	TaxAmount      float64 `json:"tax_amount"`
	ShippingAmount float64 `json:"shipping_amount"`
	DeliveryFee    float64 `json:"delivery_fee"`
	TotalAmount    float64 `json:"total_amount"`

	Status           string     `gorm:"index;default:draft" json:"status"`
	PaymentStatus    string     `gorm:"default:unpaid" json:"payment_status"`
	PaymentMethod    string     `json:"payment_method"`
	PaymentDate      *time.Time `json:"payment_date"`
	PaymentReference string     `json:"payment_reference"`

	InternalNotes string `json:"internal_notes"`
	IsManual      bool   `json:"is_manual"`
	IsDeleted     bool   `gorm:"index" json:"is_deleted"`

	Items []InvoiceItem `json:"items,omitempty"`
}

// InvoiceItem is one line of an invoice, with the product snapshot
// resolved by SKU at creation time. Totals are recomputed from the
// live (non-deleted) item set after every mutation.
type InvoiceItem struct {
	BaseModel
	InvoiceID     uuid.UUID `gorm:"type:uuid;index" json:"invoice_id"`
	SKU           string    `json:"sku"`
	ProductNameEn string    `json:"product_name_en"`
	ProductNameAr string    `json:"product_name_ar"`
	Quantity      int       `json:"quantity"`
	UnitPrice     float64   `json:"unit_price"`
	TotalPrice    float64   `json:"total_price"`
	Size          string    `json:"size"`
	Color         string    `json:"color"`
	IsDeleted     bool      `gorm:"index" json:"is_deleted"`
}

// InvoiceStatusHistory is the append-only, best-effort audit trail of
// invoice status transitions. Snapshot captures the invoice totals at
// transition time.
type InvoiceStatusHistory struct {
	BaseModel
	InvoiceID uuid.UUID      `gorm:"type:uuid;index" json:"invoice_id"`
	OldStatus string         `json:"old_status"`
	NewStatus string         `json:"new_status"`
	Reason    string         `json:"reason"`
	ChangedBy *uuid.UUID     `gorm:"type:uuid" json:"changed_by"`
	Snapshot  datatypes.JSON `json:"snapshot"`
}

// Payment records money received against an invoice. Append-only.
type Payment struct {
	BaseModel
	InvoiceID uuid.UUID `gorm:"type:uuid;index" json:"invoice_id"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Reference string    `json:"reference"`
	Notes     string    `json:"notes"`
	PaidAt    time.Time `json:"paid_at"`
}
