package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aswaq/internal/middleware"
	"github.com/example/aswaq/internal/models"
	"github.com/example/aswaq/internal/services"
	"github.com/example/aswaq/internal/utils"
)

// InvoiceHandler manages the invoice lifecycle endpoints.
type InvoiceHandler struct {
	db       *gorm.DB
	invoices *services.InvoiceService
}

// NewInvoiceHandler constructs InvoiceHandler.
func NewInvoiceHandler(db *gorm.DB, invoices *services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{db: db, invoices: invoices}
}

type createInvoiceRequest struct {
	UserID         string                      `json:"user_id"`
	AddressID      string                      `json:"address_id"`
	Billing        *services.BillingDetails    `json:"billing_details"`
	Items          []services.InvoiceItemInput `json:"items"`
	DiscountAmount float64                     `json:"discount_amount"`
	DeliveryFee    float64                     `json:"delivery_fee"`
	Notes          string                      `json:"notes"`
}

// Create assembles a manual invoice. Partial item failures yield a
// multi-status response instead of aborting the batch.
func (h *InvoiceHandler) Create(c *fiber.Ctx) error {
	callerID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	input := services.CreateInvoiceInput{
		Billing:        req.Billing,
		Items:          req.Items,
		DiscountAmount: req.DiscountAmount,
		DeliveryFee:    req.DeliveryFee,
		Notes:          req.Notes,
	}

	if req.UserID != "" {
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid user_id")
		}
		input.UserID = &id
	}
	if req.AddressID != "" {
		id, err := uuid.Parse(req.AddressID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid address_id")
		}
		input.AddressID = &id
	}

	invoice, failures, err := h.invoices.CreateManual(callerID, input)
	if err != nil {
		return serviceError(err)
	}

	status := fiber.StatusCreated
	if len(failures) > 0 {
		status = fiber.StatusMultiStatus
	}

	return c.Status(status).JSON(fiber.Map{
		"success":  true,
		"data":     invoice,
		"failures": failures,
	})
}

type fromOrderRequest struct {
	OrderID string `json:"order_id"`
}

// CreateFromOrder derives an invoice from an order. Customers may
// only invoice their own orders.
func (h *InvoiceHandler) CreateFromOrder(c *fiber.Ctx) error {
	callerID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req fromOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order_id")
	}

	invoice, err := h.invoices.CreateFromOrder(orderID, callerID, middleware.IsAdmin(c))
	if err != nil {
		return serviceError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": invoice})
}

type updateInvoiceStatusRequest struct {
	InvoiceID    string `json:"invoice_id"`
	NewStatus    string `json:"new_status"`
	StatusReason string `json:"status_reason"`
}

// UpdateStatus moves an invoice along the status machine.
func (h *InvoiceHandler) UpdateStatus(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateInvoiceStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	invoiceID, err := uuid.Parse(req.InvoiceID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid invoice_id")
	}

	invoice, err := h.invoices.UpdateStatus(invoiceID, req.NewStatus, req.StatusReason, userID)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": invoice})
}

type markPaidRequest struct {
	InvoiceID        string   `json:"invoice_id"`
	PaymentMethod    string   `json:"payment_method"`
	PaymentAmount    *float64 `json:"payment_amount"`
	PaymentDate      *string  `json:"payment_date"`
	PaymentReference string   `json:"payment_reference"`
	Notes            string   `json:"notes"`
}

// MarkPaid records a payment against an invoice.
func (h *InvoiceHandler) MarkPaid(c *fiber.Ctx) error {
	var req markPaidRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	invoiceID, err := uuid.Parse(req.InvoiceID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid invoice_id")
	}
	if req.PaymentMethod == "" {
		return fiber.NewError(fiber.StatusBadRequest, "payment_method is required")
	}

	input := services.MarkPaidInput{
		PaymentMethod:    req.PaymentMethod,
		PaymentAmount:    req.PaymentAmount,
		PaymentReference: req.PaymentReference,
		Notes:            req.Notes,
	}
	if req.PaymentDate != nil {
		parsed, err := time.Parse(time.RFC3339, *req.PaymentDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payment_date")
		}
		input.PaymentDate = &parsed
	}

	invoice, err := h.invoices.MarkPaid(invoiceID, input)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": invoice})
}

type addItemRequest struct {
	InvoiceID string `json:"invoice_id"`
	services.InvoiceItemInput
}

// AddItem appends a line to an invoice.
func (h *InvoiceHandler) AddItem(c *fiber.Ctx) error {
	var req addItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	invoiceID, err := uuid.Parse(req.InvoiceID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid invoice_id")
	}

	invoice, err := h.invoices.AddItem(invoiceID, req.InvoiceItemInput)
	if err != nil {
		return serviceError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": invoice})
}

type updateItemRequest struct {
	InvoiceID string `json:"invoice_id"`
	ItemID    string `json:"item_id"`
	services.UpdateItemInput
}

// UpdateItem edits a line on an invoice.
func (h *InvoiceHandler) UpdateItem(c *fiber.Ctx) error {
	var req updateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	invoiceID, err := uuid.Parse(req.InvoiceID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid invoice_id")
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid item_id")
	}

	invoice, err := h.invoices.UpdateItem(invoiceID, itemID, req.UpdateItemInput)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": invoice})
}

type deleteItemRequest struct {
	InvoiceID string `json:"invoice_id"`
	ItemID    string `json:"item_id"`
}

// DeleteItem removes a line from an invoice.
func (h *InvoiceHandler) DeleteItem(c *fiber.Ctx) error {
	var req deleteItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	invoiceID, err := uuid.Parse(req.InvoiceID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid invoice_id")
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid item_id")
	}

	invoice, err := h.invoices.DeleteItem(invoiceID, itemID)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": invoice})
}

type deleteInvoiceRequest struct {
	InvoiceID      string `json:"invoice_id"`
	ForceDelete    bool   `json:"force_delete"`
	DeletionReason string `json:"deletion_reason"`
}

// Delete soft-deletes an invoice under the business rules.
func (h *InvoiceHandler) Delete(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req deleteInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	invoiceID, err := uuid.Parse(req.InvoiceID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid invoice_id")
	}

	if err := h.invoices.Delete(invoiceID, req.ForceDelete, req.DeletionReason, userID, middleware.IsAdmin(c)); err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{"success": true, "message": "invoice deleted"})
}

// List returns paginated invoices, admin-wide or scoped to the caller.
func (h *InvoiceHandler) List(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Invoice{}).Scopes(models.NotDeleted)
	if !middleware.IsAdmin(c) {
		query = query.Where("user_id = ?", userID)
	}

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var invoices []models.Invoice
	if err := query.Preload("Items", "is_deleted = ?", false).
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&invoices).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    invoices,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// Get returns a single invoice with its live items.
func (h *InvoiceHandler) Get(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	query := h.db.Scopes(models.NotDeleted).Preload("Items", "is_deleted = ?", false)
	if !middleware.IsAdmin(c) {
		query = query.Where("user_id = ?", userID)
	}

	var invoice models.Invoice
	if err := query.First(&invoice, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "invoice not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": invoice})
}
