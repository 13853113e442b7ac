package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aswaq/internal/middleware"
	"github.com/example/aswaq/internal/models"
)

// ProfileHandler manages user profile, addresses and the state lookup.
type ProfileHandler struct {
	db *gorm.DB
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(db *gorm.DB) *ProfileHandler {
	return &ProfileHandler{db: db}
}

// GetProfile returns the authenticated user's profile.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":         user.ID,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"email":      user.Email,
			"phone":      user.Phone,
			"role":       user.Role,
			"created_at": user.CreatedAt,
			"updated_at": user.UpdatedAt,
		},
	})
}

type updateProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// UpdateProfile updates allow-listed user profile fields.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.FirstName != "" {
		updates["first_name"] = req.FirstName
	}
	if req.LastName != "" {
		updates["last_name"] = req.LastName
	}
	if req.Phone != "" {
		updates["phone"] = req.Phone
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}
	updates["updated_at"] = time.Now()

	if err := h.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "profile updated"})
}

// ListStates returns the static region lookup with delivery fees.
func (h *ProfileHandler) ListStates(c *fiber.Ctx) error {
	var states []models.State
	if err := h.db.Order("name_en asc").Find(&states).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": states})
}

type stateRequest struct {
	NameEn      string   `json:"name_en"`
	NameAr      string   `json:"name_ar"`
	DeliveryFee *float64 `json:"delivery_fee"`
}

// CreateState adds a region row.
func (h *ProfileHandler) CreateState(c *fiber.Ctx) error {
	var req stateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.NameEn == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name_en is required")
	}

	state := models.State{NameEn: req.NameEn, NameAr: req.NameAr}
	if req.DeliveryFee != nil {
		state.DeliveryFee = *req.DeliveryFee
	}

	if err := h.db.Create(&state).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": state})
}

// ListAddresses returns the user's active addresses.
func (h *ProfileHandler) ListAddresses(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var addresses []models.UserAddress
	if err := h.db.Scopes(models.NotDeleted).Preload("State").
		Where("user_id = ?", userID).Find(&addresses).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": addresses})
}

type createAddressRequest struct {
	StateID       string `json:"state_id"`
	Label         string `json:"label"`
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone"`
	AddressLine   string `json:"address_line"`
	City          string `json:"city"`
	District      string `json:"district"`
	PostalCode    string `json:"postal_code"`
	IsDefault     bool   `json:"is_default"`
}

// CreateAddress creates an address for the user.
func (h *ProfileHandler) CreateAddress(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createAddressRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	address := models.UserAddress{
		UserID:        userID,
		Label:         req.Label,
		RecipientName: req.RecipientName,
		Phone:         req.Phone,
		AddressLine:   req.AddressLine,
		City:          req.City,
		District:      req.District,
		PostalCode:    req.PostalCode,
		IsDefault:     req.IsDefault,
	}

	if req.StateID != "" {
		stateID, err := uuid.Parse(req.StateID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid state_id")
		}
		var state models.State
		if err := h.db.First(&state, "id = ?", stateID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fiber.NewError(fiber.StatusNotFound, "state not found")
			}
			return err
		}
		address.StateID = &state.ID
	}

	if err := h.db.Create(&address).Error; err != nil {
		return err
	}

	if address.IsDefault {
		h.clearOtherDefaults(userID, address.ID)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": address})
}

type updateAddressRequest struct {
	StateID       *string `json:"state_id"`
	Label         *string `json:"label"`
	RecipientName *string `json:"recipient_name"`
	Phone         *string `json:"phone"`
	AddressLine   *string `json:"address_line"`
	City          *string `json:"city"`
	District      *string `json:"district"`
	PostalCode    *string `json:"postal_code"`
	IsDefault     *bool   `json:"is_default"`
}

// UpdateAddress updates allow-listed fields on an owned address.
func (h *ProfileHandler) UpdateAddress(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	addressID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req updateAddressRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.StateID != nil {
		stateID, err := uuid.Parse(*req.StateID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid state_id")
		}
		updates["state_id"] = stateID
	}
	if req.Label != nil {
		updates["label"] = *req.Label
	}
	if req.RecipientName != nil {
		updates["recipient_name"] = *req.RecipientName
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.AddressLine != nil {
		updates["address_line"] = *req.AddressLine
	}
	if req.City != nil {
		updates["city"] = *req.City
	}
	if req.District != nil {
		updates["district"] = *req.District
	}
	if req.PostalCode != nil {
		updates["postal_code"] = *req.PostalCode
	}
	if req.IsDefault != nil {
		updates["is_default"] = *req.IsDefault
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}
	updates["updated_at"] = time.Now()

	result := h.db.Model(&models.UserAddress{}).
		Where("id = ? AND user_id = ? AND is_deleted = ?", addressID, userID, false).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "address not found")
	}

	if req.IsDefault != nil && *req.IsDefault {
		h.clearOtherDefaults(userID, addressID)
	}

	return c.JSON(fiber.Map{"success": true, "message": "address updated"})
}

// DeleteAddress soft-deletes an owned address.
func (h *ProfileHandler) DeleteAddress(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	addressID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	result := h.db.Model(&models.UserAddress{}).
		Where("id = ? AND user_id = ? AND is_deleted = ?", addressID, userID, false).
		Updates(map[string]interface{}{"is_deleted": true, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "address not found")
	}

	return c.JSON(fiber.Map{"success": true, "message": "address deleted"})
}

func (h *ProfileHandler) clearOtherDefaults(userID, keepID uuid.UUID) {
	h.db.Model(&models.UserAddress{}).
		Where("user_id = ? AND id <> ?", userID, keepID).
		Update("is_default", false)
}
