package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aswaq/internal/middleware"
	"github.com/example/aswaq/internal/models"
	"github.com/example/aswaq/internal/services"
	"github.com/example/aswaq/internal/utils"
)

// OrderHandler manages checkout and order endpoints.
type OrderHandler struct {
	db       *gorm.DB
	checkout *services.CheckoutService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(db *gorm.DB, checkout *services.CheckoutService) *OrderHandler {
	return &OrderHandler{db: db, checkout: checkout}
}

type checkoutRequest struct {
	AddressID   string `json:"address_id"`
	Note        string `json:"note"`
	VoucherCode string `json:"voucher_code"`
}

// Checkout converts the user's cart into an order.
func (h *OrderHandler) Checkout(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	addressID, err := uuid.Parse(req.AddressID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid address_id")
	}

	result, err := h.checkout.Checkout(userID, services.CheckoutInput{
		AddressID:   addressID,
		Note:        req.Note,
		VoucherCode: req.VoucherCode,
	})
	if err != nil {
		return serviceError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": result})
}

type directCheckoutRequest struct {
	ProductID   string `json:"product_id"`
	Quantity    int    `json:"quantity"`
	Size        string `json:"size"`
	Color       string `json:"color"`
	AddressID   string `json:"address_id"`
	Note        string `json:"note"`
	VoucherCode string `json:"voucher_code"`
}

// DirectCheckout places a single-item order without touching the cart.
func (h *OrderHandler) DirectCheckout(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req directCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product_id")
	}
	addressID, err := uuid.Parse(req.AddressID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid address_id")
	}

	result, err := h.checkout.DirectCheckout(userID, services.DirectCheckoutInput{
		ProductID:   productID,
		Quantity:    req.Quantity,
		Size:        req.Size,
		Color:       req.Color,
		AddressID:   addressID,
		Note:        req.Note,
		VoucherCode: req.VoucherCode,
	})
	if err != nil {
		return serviceError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": result})
}

type updateOrderStatusRequest struct {
	OrderID   string `json:"order_id"`
	OrderCode string `json:"order_code"`
	Status    string `json:"status"`
	Note      string `json:"note"`
}

var validOrderStatuses = map[string]bool{
	models.OrderStatusPending:   true,
	models.OrderStatusConfirmed: true,
	models.OrderStatusShipped:   true,
	models.OrderStatusDelivered: true,
	models.OrderStatusCompleted: true,
	models.OrderStatusCancelled: true,
}

// UpdateStatus sets an order status, addressed by id or code.
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateOrderStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if !validOrderStatuses[req.Status] {
		return fiber.NewError(fiber.StatusBadRequest, "invalid status")
	}

	var orderID *uuid.UUID
	if req.OrderID != "" {
		id, err := uuid.Parse(req.OrderID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid order_id")
		}
		orderID = &id
	}

	if err := h.checkout.UpdateOrderStatus(orderID, req.OrderCode, req.Status, req.Note, userID); err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"status": "updated"}})
}

// ListOrders returns orders for the authenticated user.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Order{}).Scopes(models.NotDeleted).Where("user_id = ?", userID)

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Preload("Items").
		Order("placed_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetOrder returns a single order with its items and status history.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var order models.Order
	if err := h.db.Scopes(models.NotDeleted).Preload("Items").
		First(&order, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	var history []models.OrderStatusHistory
	if err := h.db.Where("order_id = ?", order.ID).
		Order("created_at asc").Find(&history).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{
		"order":   order,
		"history": history,
	}})
}
