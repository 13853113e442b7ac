package models

import "github.com/google/uuid"

// Product is the catalog entry referenced by cart lines, orders and
// invoices. It is the source of truth for unit price at checkout and
// invoice time; orders and invoices copy what they need, so later
// price edits never change historical records.
type Product struct {
	BaseModel
	SKU       string   `gorm:"uniqueIndex" json:"sku"`
	NameEn    string   `json:"name_en"`
	NameAr    string   `json:"name_ar"`
	Price     float64  `json:"price"`
	OldPrice  *float64 `json:"old_price"`
	Image     string   `json:"image"`
	IsDeleted bool     `gorm:"index" json:"is_deleted"`
}

// Favorite marks a product as favorited by a user.
type Favorite struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	ProductID uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	Product   *Product  `json:"product,omitempty"`
}

// Review is a customer rating on a product.
type Review struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	ProductID uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	IsDeleted bool      `gorm:"index" json:"is_deleted"`
}
