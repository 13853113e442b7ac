package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aswaq/internal/middleware"
	"github.com/example/aswaq/internal/models"
	"github.com/example/aswaq/internal/utils"
)

// ProductHandler manages the catalog surface: products and reviews.
type ProductHandler struct {
	db *gorm.DB
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(db *gorm.DB) *ProductHandler {
	return &ProductHandler{db: db}
}

// ListProducts returns paginated, non-deleted products.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Product{}).Scopes(models.NotDeleted)

	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("name_en ILIKE ? OR name_ar ILIKE ? OR sku ILIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var products []models.Product
	if err := query.Limit(pg.Limit).Offset(pg.Offset).Order("created_at desc").
		Find(&products).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    products,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetProduct returns a single product by ID.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var product models.Product
	if err := h.db.Scopes(models.NotDeleted).First(&product, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}

type productRequest struct {
	SKU      string   `json:"sku"`
	NameEn   string   `json:"name_en"`
	NameAr   string   `json:"name_ar"`
	Price    *float64 `json:"price"`
	OldPrice *float64 `json:"old_price"`
	Image    string   `json:"image"`
}

// CreateProduct persists a new product.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.SKU == "" || req.NameEn == "" || req.Price == nil {
		return fiber.NewError(fiber.StatusBadRequest, "sku, name_en and price are required")
	}

	product := models.Product{
		SKU:      req.SKU,
		NameEn:   req.NameEn,
		NameAr:   req.NameAr,
		Price:    *req.Price,
		OldPrice: req.OldPrice,
		Image:    req.Image,
	}

	if err := h.db.Create(&product).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": product})
}

// UpdateProduct updates allow-listed product fields.
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var product models.Product
	if err := h.db.Scopes(models.NotDeleted).First(&product, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.NameEn != "" {
		updates["name_en"] = req.NameEn
	}
	if req.NameAr != "" {
		updates["name_ar"] = req.NameAr
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}
	if req.OldPrice != nil {
		updates["old_price"] = *req.OldPrice
	}
	if req.Image != "" {
		updates["image"] = req.Image
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}
	updates["updated_at"] = time.Now()

	if err := h.db.Model(&models.Product{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "product updated"})
}

// DeleteProduct soft-deletes a product.
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	result := h.db.Model(&models.Product{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{"is_deleted": true, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "product not found")
	}

	return c.JSON(fiber.Map{"success": true, "message": "product deleted"})
}

// ListReviews returns non-deleted reviews for a product.
func (h *ProductHandler) ListReviews(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var reviews []models.Review
	if err := h.db.Scopes(models.NotDeleted).
		Where("product_id = ?", productID).
		Order("created_at desc").Find(&reviews).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": reviews})
}

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// CreateReview adds a review to a product.
func (h *ProductHandler) CreateReview(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req reviewRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return fiber.NewError(fiber.StatusBadRequest, "rating must be between 1 and 5")
	}

	var product models.Product
	if err := h.db.Scopes(models.NotDeleted).First(&product, "id = ?", productID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	review := models.Review{
		UserID:    userID,
		ProductID: productID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	}

	if err := h.db.Create(&review).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": review})
}

// DeleteReview soft-deletes the caller's own review.
func (h *ProductHandler) DeleteReview(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	reviewID, err := uuid.Parse(c.Params("reviewId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	result := h.db.Model(&models.Review{}).
		Where("id = ? AND user_id = ? AND is_deleted = ?", reviewID, userID, false).
		Updates(map[string]interface{}{"is_deleted": true, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "review not found")
	}

	return c.JSON(fiber.Map{"success": true, "message": "review deleted"})
}
