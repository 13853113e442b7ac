package models

import (
	"time"

	"github.com/google/uuid"
)

// Order statuses.
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// Order is an immutable snapshot of a checkout. Items are created
// exactly once with the order; only status and note fields are
// mutated afterwards, through the status-history flow.
type Order struct {
	BaseModel
	UserID      uuid.UUID   `gorm:"type:uuid;index" json:"user_id"`
	User        *User       `json:"user,omitempty"`
	AddressID   *uuid.UUID  `gorm:"type:uuid" json:"address_id"`
	OrderCode   string      `gorm:"uniqueIndex" json:"order_code"`
	Status      string      `gorm:"index" json:"status"`
	Note        string      `json:"note"`
	UserNote    string      `json:"user_note"`
	Subtotal    float64     `json:"subtotal"`
	Discount    float64     `json:"discount"`
	DeliveryFee float64     `json:"delivery_fee"`
	TotalPrice  float64     `json:"total_price"`
	VoucherCode string      `json:"voucher_code"`
	PlacedAt    time.Time   `json:"placed_at"`
	IsDeleted   bool        `gorm:"index" json:"is_deleted"`
	Items       []OrderItem `json:"items,omitempty"`
}

// OrderItem carries the product snapshot for one order line. Never
// edited in place after creation.
type OrderItem struct {
	BaseModel
	OrderID   uuid.UUID `gorm:"type:uuid;index" json:"order_id"`
	ProductID uuid.UUID `gorm:"type:uuid" json:"product_id"`
	SKU       string    `json:"sku"`
	NameEn    string    `json:"name_en"`
	NameAr    string    `json:"name_ar"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	Size      string    `json:"size"`
	Color     string    `json:"color"`
}

// OrderStatusHistory is the append-only audit log of order status
// transitions, including the creation event.
type OrderStatusHistory struct {
	BaseModel
	OrderID   uuid.UUID  `gorm:"type:uuid;index" json:"order_id"`
	Status    string     `json:"status"`
	ChangedBy *uuid.UUID `gorm:"type:uuid" json:"changed_by"`
	Note      string     `json:"note"`
}
