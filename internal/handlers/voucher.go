package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/aswaq/internal/models"
)

// VoucherHandler manages discount vouchers.
type VoucherHandler struct {
	db *gorm.DB
}

// NewVoucherHandler constructs VoucherHandler.
func NewVoucherHandler(db *gorm.DB) *VoucherHandler {
	return &VoucherHandler{db: db}
}

// ListVouchers returns all vouchers.
func (h *VoucherHandler) ListVouchers(c *fiber.Ctx) error {
	var vouchers []models.Voucher
	if err := h.db.Order("created_at desc").Find(&vouchers).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": vouchers})
}

type createVoucherRequest struct {
	Code         string   `json:"code"`
	DiscountType string   `json:"discount_type"`
	Value        *float64 `json:"value"`
	ExpiresAt    *string  `json:"expires_at"`
}

// CreateVoucher creates a voucher. A duplicate code is a conflict.
func (h *VoucherHandler) CreateVoucher(c *fiber.Ctx) error {
	var req createVoucherRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Code == "" || req.Value == nil {
		return fiber.NewError(fiber.StatusBadRequest, "code and value are required")
	}
	if req.DiscountType != models.VoucherTypePercent && req.DiscountType != models.VoucherTypeFixed {
		return fiber.NewError(fiber.StatusBadRequest, "discount_type must be percent or fixed")
	}

	var existing models.Voucher
	if err := h.db.Where("code = ?", req.Code).First(&existing).Error; err == nil {
		return fiber.NewError(fiber.StatusConflict, "voucher code already exists")
	} else if err != gorm.ErrRecordNotFound {
		return err
	}

	voucher := models.Voucher{
		Code:         req.Code,
		DiscountType: req.DiscountType,
		Value:        *req.Value,
		IsActive:     true,
	}
	if req.ExpiresAt != nil {
		parsed, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid expires_at")
		}
		voucher.ExpiresAt = &parsed
	}

	if err := h.db.Create(&voucher).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": voucher})
}

type validateVoucherRequest struct {
	Code     string  `json:"code"`
	Subtotal float64 `json:"subtotal"`
}

// ValidateVoucher checks a code and previews its discount.
func (h *VoucherHandler) ValidateVoucher(c *fiber.Ctx) error {
	var req validateVoucherRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var voucher models.Voucher
	if err := h.db.Where("code = ?", req.Code).First(&voucher).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "voucher not found")
		}
		return err
	}

	if !voucher.IsActive || voucher.Expired(time.Now()) {
		return fiber.NewError(fiber.StatusBadRequest, "voucher is not valid")
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{
		"code":     voucher.Code,
		"discount": voucher.DiscountOn(req.Subtotal),
	}})
}
