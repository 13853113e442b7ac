package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/example/aswaq/internal/services"
)

// serviceError maps service-level failures onto HTTP statuses. Errors
// it does not recognize bubble up as 500s.
func serviceError(err error) error {
	var transition *services.TransitionError
	if errors.As(err, &transition) {
		return fiber.NewError(fiber.StatusBadRequest, transition.Error())
	}

	switch {
	case errors.Is(err, services.ErrCartEmpty),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrVoucherInvalid),
		errors.Is(err, services.ErrBillingRequired),
		errors.Is(err, services.ErrReasonRequired),
		errors.Is(err, services.ErrAlreadyPaid),
		errors.Is(err, services.ErrInvoiceCancelled),
		errors.Is(err, services.ErrInvoiceRefunded),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvoiceFrozen),
		errors.Is(err, services.ErrNoValidItems),
		errors.Is(err, services.ErrDeleteBlocked):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrAddressNotFound),
		errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrInvoiceNotFound),
		errors.Is(err, services.ErrItemNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvoiceExists):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrForceForbidden),
		errors.Is(err, services.ErrNotOrderOwner):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	}

	return err
}
