package models

import "github.com/google/uuid"

// CartItem is one line in a user's cart. Size and color are part of
// the line identity, not filters: the same product in two sizes is two
// lines. Lines are soft-deleted on removal and on successful checkout.
type CartItem struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	ProductID uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	Product   *Product  `json:"product,omitempty"`
	Quantity  int       `json:"quantity"`
	Size      string    `json:"size"`
	Color     string    `json:"color"`
	IsDeleted bool      `gorm:"index" json:"is_deleted"`
}
