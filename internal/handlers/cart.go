package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aswaq/internal/middleware"
	"github.com/example/aswaq/internal/models"
)

// CartHandler manages cart lines and favorites.
type CartHandler struct {
	db *gorm.DB
}

// NewCartHandler constructs CartHandler.
func NewCartHandler(db *gorm.DB) *CartHandler {
	return &CartHandler{db: db}
}

// ListCart returns the user's active cart lines with product data.
func (h *CartHandler) ListCart(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var items []models.CartItem
	if err := h.db.Scopes(models.NotDeleted).Preload("Product").
		Where("user_id = ?", userID).
		Order("created_at desc").Find(&items).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": items})
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// AddCartItem adds a line to the cart, merging into an existing line
// with the same product/size/color identity.
func (h *CartHandler) AddCartItem(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req addCartItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Quantity <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "quantity must be positive")
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product_id")
	}

	var product models.Product
	if err := h.db.Scopes(models.NotDeleted).First(&product, "id = ?", productID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	var existing models.CartItem
	err = h.db.Scopes(models.NotDeleted).
		Where("user_id = ? AND product_id = ? AND size = ? AND color = ?",
			userID, productID, req.Size, req.Color).
		First(&existing).Error
	if err == nil {
		updates := map[string]interface{}{
			"quantity":   existing.Quantity + req.Quantity,
			"updated_at": time.Now(),
		}
		if err := h.db.Model(&models.CartItem{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "message": "cart updated"})
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	item := models.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  req.Quantity,
		Size:      req.Size,
		Color:     req.Color,
	}
	if err := h.db.Create(&item).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": item})
}

type updateCartItemRequest struct {
	Quantity *int    `json:"quantity"`
	Size     *string `json:"size"`
	Color    *string `json:"color"`
}

// UpdateCartItem updates quantity or variant fields on a cart line.
func (h *CartHandler) UpdateCartItem(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	itemID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req updateCartItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Quantity != nil {
		if *req.Quantity <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "quantity must be positive")
		}
		updates["quantity"] = *req.Quantity
	}
	if req.Size != nil {
		updates["size"] = *req.Size
	}
	if req.Color != nil {
		updates["color"] = *req.Color
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}
	updates["updated_at"] = time.Now()

	result := h.db.Model(&models.CartItem{}).
		Where("id = ? AND user_id = ? AND is_deleted = ?", itemID, userID, false).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "cart item not found")
	}

	return c.JSON(fiber.Map{"success": true, "message": "cart updated"})
}

// RemoveCartItem soft-deletes one cart line.
func (h *CartHandler) RemoveCartItem(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	itemID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	result := h.db.Model(&models.CartItem{}).
		Where("id = ? AND user_id = ? AND is_deleted = ?", itemID, userID, false).
		Updates(map[string]interface{}{"is_deleted": true, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "cart item not found")
	}

	return c.JSON(fiber.Map{"success": true, "message": "item removed"})
}

// ToggleFavorite adds or removes a product from the user's favorites.
func (h *CartHandler) ToggleFavorite(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	productID, err := uuid.Parse(c.Params("productId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}

	var favorite models.Favorite
	err = h.db.Where("user_id = ? AND product_id = ?", userID, productID).First(&favorite).Error
	if err == nil {
		if err := h.db.Delete(&favorite).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"favorited": false}})
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	var product models.Product
	if err := h.db.Scopes(models.NotDeleted).First(&product, "id = ?", productID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	favorite = models.Favorite{UserID: userID, ProductID: productID}
	if err := h.db.Create(&favorite).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": fiber.Map{"favorited": true}})
}

// ListFavorites returns the user's favorited products.
func (h *CartHandler) ListFavorites(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var favorites []models.Favorite
	if err := h.db.Preload("Product").
		Where("user_id = ?", userID).
		Order("created_at desc").Find(&favorites).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": favorites})
}
