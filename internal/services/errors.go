package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service-level failures the handlers translate into HTTP statuses.
var (
	ErrCartEmpty        = errors.New("cart is empty")
	ErrAddressNotFound  = errors.New("address not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrVoucherInvalid   = errors.New("voucher is not valid")
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvoiceNotFound  = errors.New("invoice not found")
	ErrInvoiceExists    = errors.New("invoice already exists for this order")
	ErrInvoiceFrozen    = errors.New("invoice items can no longer be modified")
	ErrAlreadyPaid      = errors.New("invoice is already paid")
	ErrInvoiceCancelled = errors.New("invoice is cancelled")
	ErrInvoiceRefunded  = errors.New("invoice is refunded")
	ErrInvalidAmount    = errors.New("payment amount must be positive")
	ErrNotOrderOwner    = errors.New("order does not belong to caller")
	ErrItemNotFound     = errors.New("invoice item not found")
	ErrNoValidItems     = errors.New("no valid invoice items")
	ErrBillingRequired  = errors.New("exactly one of address_id or billing details must be provided")
	ErrReasonRequired   = errors.New("force delete requires a reason")
	ErrForceForbidden   = errors.New("force delete requires admin role")
	ErrDeleteBlocked    = errors.New("invoice cannot be deleted in its current state")
)

// TransitionError reports an illegal invoice status transition and
// names the allowed target set.
type TransitionError struct {
	From    string
	To      string
	Allowed []string
}

func (e *TransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("invoice status %q is terminal", e.From)
	}
	return fmt.Sprintf("cannot transition invoice from %q to %q; allowed: %s",
		e.From, e.To, strings.Join(e.Allowed, ", "))
}

// lockForUpdate adds a row lock on dialects that support it. The
// SQLite dialect used in tests has no FOR UPDATE clause.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// isUniqueViolation detects duplicate-key failures across the postgres
// and sqlite drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
