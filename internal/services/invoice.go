package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/example/aswaq/internal/models"
	"github.com/example/aswaq/internal/utils"
)

// invoiceTransitions is the status machine: each status maps to the
// set of statuses it may move to. Cancelled and refunded are terminal.
var invoiceTransitions = map[string][]string{
	models.InvoiceStatusDraft:     {models.InvoiceStatusSent, models.InvoiceStatusCancelled},
	models.InvoiceStatusSent:      {models.InvoiceStatusPaid, models.InvoiceStatusOverdue, models.InvoiceStatusCancelled},
	models.InvoiceStatusPaid:      {models.InvoiceStatusRefunded},
	models.InvoiceStatusOverdue:   {models.InvoiceStatusPaid, models.InvoiceStatusCancelled},
	models.InvoiceStatusCancelled: {},
	models.InvoiceStatusRefunded:  {},
}

// AllowedTransitions returns the statuses an invoice may move to from
// the given status.
func AllowedTransitions(from string) []string {
	return invoiceTransitions[from]
}

// CanTransition reports whether from -> to is a legal status move.
func CanTransition(from, to string) bool {
	for _, allowed := range invoiceTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// frozenForItems reports whether the invoice status forbids item
// mutation. Paid and the terminal states freeze the item set.
func frozenForItems(status string) bool {
	switch status {
	case models.InvoiceStatusPaid, models.InvoiceStatusCancelled, models.InvoiceStatusRefunded:
		return true
	}
	return false
}

// InvoiceService manages invoice assembly, the status state machine,
// item mutation with total recomputation, payment recording and
// business-rule-gated deletion.
type InvoiceService struct {
	db       *gorm.DB
	notifier *Notifier
}

// NewInvoiceService constructs InvoiceService.
func NewInvoiceService(db *gorm.DB, notifier *Notifier) *InvoiceService {
	return &InvoiceService{db: db, notifier: notifier}
}

// BillingDetails is an inline billing snapshot, the alternative to
// cloning a stored address.
type BillingDetails struct {
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	AddressLine   string `json:"address_line"`
	City          string `json:"city"`
	District      string `json:"district"`
	PostalCode    string `json:"postal_code"`
}

// InvoiceItemInput is one requested invoice line. Name and price are
// resolved from the product by SKU when not supplied.
type InvoiceItemInput struct {
	SKU           string   `json:"sku"`
	ProductNameEn string   `json:"product_name_en"`
	ProductNameAr string   `json:"product_name_ar"`
	Quantity      int      `json:"quantity"`
	UnitPrice     *float64 `json:"unit_price"`
	Size          string   `json:"size"`
	Color         string   `json:"color"`
}

// ItemFailure records a per-row rejection during bulk assembly.
type ItemFailure struct {
	Index int    `json:"index"`
	SKU   string `json:"sku"`
	Error string `json:"error"`
}

// CreateInvoiceInput carries a manual invoice request. Exactly one of
// AddressID or Billing must be provided.
type CreateInvoiceInput struct {
	UserID         *uuid.UUID
	AddressID      *uuid.UUID
	Billing        *BillingDetails
	Items          []InvoiceItemInput
	DiscountAmount float64
	DeliveryFee    float64
	Notes          string
}

// MarkPaidInput carries a payment-recording request.
type MarkPaidInput struct {
	PaymentMethod    string
	PaymentAmount    *float64
	PaymentDate      *time.Time
	PaymentReference string
	Notes            string
}

// CreateManual assembles a manual invoice. Unresolvable items are
// recorded as per-row failures without aborting the batch; the call
// fails outright only when billing is ambiguous or no item survives.
func (s *InvoiceService) CreateManual(callerID uuid.UUID, in CreateInvoiceInput) (*models.Invoice, []ItemFailure, error) {
	if (in.AddressID == nil) == (in.Billing == nil) {
		return nil, nil, ErrBillingRequired
	}

	var invoice *models.Invoice
	var failures []ItemFailure

	err := s.db.Transaction(func(tx *gorm.DB) error {
		inv := &models.Invoice{
			InvoiceNumber:  utils.GenerateInvoiceNumber(time.Now()),
			Status:         models.InvoiceStatusDraft,
			PaymentStatus:  models.PaymentStatusUnpaid,
			DiscountAmount: in.DiscountAmount,
			DeliveryFee:    in.DeliveryFee,
			InternalNotes:  in.Notes,
			IsManual:       true,
			UserID:         in.UserID,
		}

		if in.AddressID != nil {
			ownerID := callerID
			if in.UserID != nil {
				ownerID = *in.UserID
			}
			var address models.UserAddress
			if err := tx.Scopes(models.NotDeleted).
				First(&address, "id = ? AND user_id = ?", *in.AddressID, ownerID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrAddressNotFound
				}
				return err
			}
			inv.CustomerName = address.RecipientName
			inv.CustomerPhone = address.Phone
			inv.BillingAddressLine = address.AddressLine
			inv.BillingCity = address.City
			inv.BillingDistrict = address.District
			inv.BillingPostalCode = address.PostalCode
		} else {
			inv.CustomerName = in.Billing.CustomerName
			inv.CustomerEmail = in.Billing.CustomerEmail
			inv.CustomerPhone = in.Billing.CustomerPhone
			inv.BillingAddressLine = in.Billing.AddressLine
			inv.BillingCity = in.Billing.City
			inv.BillingDistrict = in.Billing.District
			inv.BillingPostalCode = in.Billing.PostalCode
		}

		for i, itemIn := range in.Items {
			item, err := s.resolveItem(tx, itemIn)
			if err != nil {
				failures = append(failures, ItemFailure{Index: i, SKU: itemIn.SKU, Error: err.Error()})
				continue
			}
			inv.Items = append(inv.Items, *item)
			inv.Subtotal += item.TotalPrice
		}
		if len(inv.Items) == 0 {
			return ErrNoValidItems
		}

		inv.TotalAmount = invoiceTotal(inv)

		if err := tx.Create(inv).Error; err != nil {
			return err
		}
		invoice = inv
		return nil
	})
	if err != nil {
		return nil, failures, err
	}

	return invoice, failures, nil
}

// CreateFromOrder derives an invoice from an existing order. Callers
// other than the order's owner need the admin role. The lookup guard
// rejects a second invoice for the same order.
func (s *InvoiceService) CreateFromOrder(orderID, callerID uuid.UUID, isAdmin bool) (*models.Invoice, error) {
	var invoice *models.Invoice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Scopes(models.NotDeleted).Preload("Items").Preload("User").
			First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if !isAdmin && order.UserID != callerID {
			return ErrNotOrderOwner
		}

		var existing int64
		if err := tx.Model(&models.Invoice{}).Scopes(models.NotDeleted).
			Where("order_id = ?", order.ID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrInvoiceExists
		}

		inv := &models.Invoice{
			InvoiceNumber:  utils.GenerateInvoiceNumber(time.Now()),
			UserID:         &order.UserID,
			OrderID:        &order.ID,
			Status:         models.InvoiceStatusDraft,
			PaymentStatus:  models.PaymentStatusUnpaid,
			ShippingAmount: order.DeliveryFee,
			IsManual:       false,
		}

		if order.User != nil {
			inv.CustomerName = strings.TrimSpace(order.User.FirstName + " " + order.User.LastName)
			inv.CustomerEmail = order.User.Email
			inv.CustomerPhone = order.User.Phone
		}

		if order.AddressID != nil {
			var address models.UserAddress
			if err := tx.First(&address, "id = ?", *order.AddressID).Error; err == nil {
				inv.BillingAddressLine = address.AddressLine
				inv.BillingCity = address.City
				inv.BillingDistrict = address.District
				inv.BillingPostalCode = address.PostalCode
				if inv.CustomerPhone == "" {
					inv.CustomerPhone = address.Phone
				}
			}
		}

		for _, item := range order.Items {
			line := models.InvoiceItem{
				SKU:           item.SKU,
				ProductNameEn: item.NameEn,
				ProductNameAr: item.NameAr,
				Quantity:      item.Quantity,
				UnitPrice:     item.UnitPrice,
				TotalPrice:    item.UnitPrice * float64(item.Quantity),
				Size:          item.Size,
				Color:         item.Color,
			}
			inv.Items = append(inv.Items, line)
			inv.Subtotal += line.TotalPrice
		}

		inv.TotalAmount = invoiceTotal(inv)

		if err := tx.Create(inv).Error; err != nil {
			return err
		}
		invoice = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	return invoice, nil
}

// UpdateStatus moves an invoice along the transition table and applies
// the payment side effects. The history row and the notification are
// best-effort: their failure is logged, never rolled into the caller.
func (s *InvoiceService) UpdateStatus(invoiceID uuid.UUID, newStatus, reason string, changedBy uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	var oldStatus string

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Scopes(models.NotDeleted).
			First(&invoice, "id = ?", invoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvoiceNotFound
			}
			return err
		}

		oldStatus = invoice.Status
		if !CanTransition(oldStatus, newStatus) {
			return &TransitionError{From: oldStatus, To: newStatus, Allowed: AllowedTransitions(oldStatus)}
		}

		now := time.Now()
		updates := map[string]interface{}{
			"status":     newStatus,
			"updated_at": now,
		}

		switch newStatus {
		case models.InvoiceStatusPaid:
			updates["payment_status"] = models.PaymentStatusPaid
			updates["payment_date"] = now
		case models.InvoiceStatusRefunded:
			updates["payment_status"] = models.PaymentStatusRefunded
		case models.InvoiceStatusCancelled:
			updates["payment_status"] = models.PaymentStatusFailed
		}

		if reason != "" {
			updates["internal_notes"] = appendNote(invoice.InternalNotes,
				fmt.Sprintf("status %s -> %s: %s", oldStatus, newStatus, reason))
		}

		if err := tx.Model(&models.Invoice{}).Where("id = ?", invoice.ID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&invoice, "id = ?", invoice.ID).Error
	})
	if err != nil {
		return nil, err
	}

	s.recordHistory(&invoice, oldStatus, newStatus, reason, &changedBy)
	if s.notifier != nil {
		go s.notifier.NotifyInvoiceStatus(invoice.InvoiceNumber, oldStatus, newStatus, reason)
	}

	return &invoice, nil
}

// MarkPaid records a payment against the invoice. A payment below the
// total marks the invoice partially paid and leaves its status alone;
// a full payment promotes it to paid. Cancelled and refunded invoices
// reject payments.
func (s *InvoiceService) MarkPaid(invoiceID uuid.UUID, in MarkPaidInput) (*models.Invoice, error) {
	var invoice models.Invoice
	var amount float64

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Scopes(models.NotDeleted).
			First(&invoice, "id = ?", invoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvoiceNotFound
			}
			return err
		}

		if invoice.PaymentStatus == models.PaymentStatusPaid {
			return ErrAlreadyPaid
		}
		if invoice.Status == models.InvoiceStatusCancelled {
			return ErrInvoiceCancelled
		}
		if invoice.Status == models.InvoiceStatusRefunded ||
			invoice.PaymentStatus == models.PaymentStatusRefunded {
			return ErrInvoiceRefunded
		}

		amount = invoice.TotalAmount
		if in.PaymentAmount != nil {
			if *in.PaymentAmount <= 0 {
				return ErrInvalidAmount
			}
			amount = *in.PaymentAmount
		}

		paidAt := time.Now()
		if in.PaymentDate != nil {
			paidAt = *in.PaymentDate
		}

		updates := map[string]interface{}{
			"payment_method":    in.PaymentMethod,
			"payment_date":      paidAt,
			"payment_reference": in.PaymentReference,
			"updated_at":        time.Now(),
		}

		if amount < invoice.TotalAmount {
			updates["payment_status"] = models.PaymentStatusPartial
		} else {
			updates["payment_status"] = models.PaymentStatusPaid
			updates["status"] = models.InvoiceStatusPaid
		}

		note := fmt.Sprintf("payment %.2f via %s", amount, in.PaymentMethod)
		if in.Notes != "" {
			note += ": " + in.Notes
		}
		updates["internal_notes"] = appendNote(invoice.InternalNotes, note)

		if err := tx.Model(&models.Invoice{}).Where("id = ?", invoice.ID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&invoice, "id = ?", invoice.ID).Error
	})
	if err != nil {
		return nil, err
	}

	// Payment audit row is best-effort.
	payment := models.Payment{
		InvoiceID: invoice.ID,
		Amount:    amount,
		Method:    in.PaymentMethod,
		Reference: in.PaymentReference,
		Notes:     in.Notes,
		PaidAt:    time.Now(),
	}
	if in.PaymentDate != nil {
		payment.PaidAt = *in.PaymentDate
	}
	if err := s.db.Create(&payment).Error; err != nil {
		log.Printf("[Invoice] Payment audit row failed for %s: %v", invoice.InvoiceNumber, err)
	}

	if s.notifier != nil {
		go s.notifier.NotifyPayment(invoice.InvoiceNumber, amount, in.PaymentMethod, invoice.PaymentStatus)
	}

	return &invoice, nil
}

// Delete soft-deletes an invoice under the business rules: the normal
// path requires a draft/sent/cancelled status and an unpaid invoice;
// anything else needs force with a reason and an admin caller. The
// item cascade is best-effort.
func (s *InvoiceService) Delete(invoiceID uuid.UUID, force bool, reason string, callerID uuid.UUID, isAdmin bool) error {
	var invoice models.Invoice
	if err := s.db.Scopes(models.NotDeleted).
		First(&invoice, "id = ?", invoiceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvoiceNotFound
		}
		return err
	}

	if force {
		if reason == "" {
			return ErrReasonRequired
		}
		if !isAdmin {
			return ErrForceForbidden
		}
	} else {
		deletable := invoice.Status == models.InvoiceStatusDraft ||
			invoice.Status == models.InvoiceStatusSent ||
			invoice.Status == models.InvoiceStatusCancelled
		if !deletable || invoice.PaymentStatus == models.PaymentStatusPaid {
			return ErrDeleteBlocked
		}
		if invoice.OrderID != nil {
			var order models.Order
			if err := s.db.First(&order, "id = ?", *invoice.OrderID).Error; err == nil {
				if order.Status == models.OrderStatusDelivered || order.Status == models.OrderStatusCompleted {
					return ErrDeleteBlocked
				}
			}
		}
	}

	updates := map[string]interface{}{
		"is_deleted": true,
		"updated_at": time.Now(),
	}
	if reason != "" {
		updates["internal_notes"] = appendNote(invoice.InternalNotes, "deleted: "+reason)
	}
	if err := s.db.Model(&models.Invoice{}).Where("id = ?", invoice.ID).Updates(updates).Error; err != nil {
		return err
	}

	// Cascade failure keeps the invoice deleted; orphaned live items
	// are excluded by the invoice-level soft-delete filter anyway.
	if err := s.db.Model(&models.InvoiceItem{}).
		Where("invoice_id = ?", invoice.ID).
		Updates(map[string]interface{}{"is_deleted": true, "updated_at": time.Now()}).Error; err != nil {
		log.Printf("[Invoice] Item cascade failed for %s: %v", invoice.InvoiceNumber, err)
	}

	note := "deleted"
	if reason != "" {
		note = "deleted: " + reason
	}
	s.recordHistory(&invoice, invoice.Status, invoice.Status, note, &callerID)
	return nil
}

// AddItem appends a line to an unfrozen invoice and recomputes totals.
func (s *InvoiceService) AddItem(invoiceID uuid.UUID, in InvoiceItemInput) (*models.Invoice, error) {
	return s.mutateItems(invoiceID, func(tx *gorm.DB, invoice *models.Invoice) error {
		item, err := s.resolveItem(tx, in)
		if err != nil {
			return err
		}
		item.InvoiceID = invoice.ID
		return tx.Create(item).Error
	})
}

// UpdateItemInput carries the allow-listed mutable fields of a line.
type UpdateItemInput struct {
	Quantity  *int     `json:"quantity"`
	UnitPrice *float64 `json:"unit_price"`
	Size      *string  `json:"size"`
	Color     *string  `json:"color"`
}

// UpdateItem edits a line in place and recomputes totals.
func (s *InvoiceService) UpdateItem(invoiceID, itemID uuid.UUID, in UpdateItemInput) (*models.Invoice, error) {
	return s.mutateItems(invoiceID, func(tx *gorm.DB, invoice *models.Invoice) error {
		var item models.InvoiceItem
		if err := tx.Scopes(models.NotDeleted).
			First(&item, "id = ? AND invoice_id = ?", itemID, invoice.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}

		if in.Quantity != nil {
			if *in.Quantity <= 0 {
				return ErrInvalidQuantity
			}
			item.Quantity = *in.Quantity
		}
		if in.UnitPrice != nil {
			item.UnitPrice = *in.UnitPrice
		}
		if in.Size != nil {
			item.Size = *in.Size
		}
		if in.Color != nil {
			item.Color = *in.Color
		}
		item.TotalPrice = float64(item.Quantity) * item.UnitPrice

		return tx.Model(&models.InvoiceItem{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
			"quantity":    item.Quantity,
			"unit_price":  item.UnitPrice,
			"total_price": item.TotalPrice,
			"size":        item.Size,
			"color":       item.Color,
			"updated_at":  time.Now(),
		}).Error
	})
}

// DeleteItem soft-deletes a line and recomputes totals.
func (s *InvoiceService) DeleteItem(invoiceID, itemID uuid.UUID) (*models.Invoice, error) {
	return s.mutateItems(invoiceID, func(tx *gorm.DB, invoice *models.Invoice) error {
		result := tx.Model(&models.InvoiceItem{}).
			Where("id = ? AND invoice_id = ? AND is_deleted = ?", itemID, invoice.ID, false).
			Updates(map[string]interface{}{"is_deleted": true, "updated_at": time.Now()})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrItemNotFound
		}
		return nil
	})
}

// mutateItems wraps an item mutation in a transaction: freeze check,
// mutation, total recompute. The parent invoice row is locked for the
// duration so concurrent edits cannot interleave with the recompute.
func (s *InvoiceService) mutateItems(invoiceID uuid.UUID, mutate func(tx *gorm.DB, invoice *models.Invoice) error) (*models.Invoice, error) {
	var invoice models.Invoice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Scopes(models.NotDeleted).
			First(&invoice, "id = ?", invoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvoiceNotFound
			}
			return err
		}

		if frozenForItems(invoice.Status) {
			return ErrInvoiceFrozen
		}

		if err := mutate(tx, &invoice); err != nil {
			return err
		}

		return s.recomputeTotals(tx, &invoice)
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.Scopes(models.NotDeleted).Preload("Items", "is_deleted = ?", false).
		First(&invoice, "id = ?", invoice.ID).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// recomputeTotals rebuilds subtotal and total from the live item set,
// preserving the existing tax/discount/shipping/delivery fields.
func (s *InvoiceService) recomputeTotals(tx *gorm.DB, invoice *models.Invoice) error {
	var subtotal float64
	row := tx.Model(&models.InvoiceItem{}).
		Where("invoice_id = ? AND is_deleted = ?", invoice.ID, false).
		Select("COALESCE(SUM(total_price), 0)").Row()
	if err := row.Scan(&subtotal); err != nil {
		return err
	}

	invoice.Subtotal = subtotal
	invoice.TotalAmount = invoiceTotal(invoice)

	return tx.Model(&models.Invoice{}).Where("id = ?", invoice.ID).Updates(map[string]interface{}{
		"subtotal":     invoice.Subtotal,
		"total_amount": invoice.TotalAmount,
		"updated_at":   time.Now(),
	}).Error
}

// resolveItem fills an item from its SKU. A missing product is fine
// when the caller supplied a unit price; otherwise the item is
// rejected.
func (s *InvoiceService) resolveItem(tx *gorm.DB, in InvoiceItemInput) (*models.InvoiceItem, error) {
	if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	item := &models.InvoiceItem{
		SKU:           in.SKU,
		ProductNameEn: in.ProductNameEn,
		ProductNameAr: in.ProductNameAr,
		Quantity:      in.Quantity,
		Size:          in.Size,
		Color:         in.Color,
	}

	var product models.Product
	err := tx.Scopes(models.NotDeleted).First(&product, "sku = ?", in.SKU).Error
	switch {
	case err == nil:
		if item.ProductNameEn == "" {
			item.ProductNameEn = product.NameEn
		}
		if item.ProductNameAr == "" {
			item.ProductNameAr = product.NameAr
		}
		if in.UnitPrice != nil {
			item.UnitPrice = *in.UnitPrice
		} else {
			item.UnitPrice = product.Price
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if in.UnitPrice == nil {
			return nil, fmt.Errorf("sku %q: %w", in.SKU, ErrProductNotFound)
		}
		item.UnitPrice = *in.UnitPrice
	default:
		return nil, err
	}

	item.TotalPrice = float64(item.Quantity) * item.UnitPrice
	return item, nil
}

// invoiceTotal applies the canonical total formula. Manual invoices
// use subtotal - discount + delivery fee; order-derived invoices use
// subtotal + tax - discount + shipping.
func invoiceTotal(invoice *models.Invoice) float64 {
	if invoice.IsManual {
		return invoice.Subtotal - invoice.DiscountAmount + invoice.DeliveryFee
	}
	return invoice.Subtotal + invoice.TaxAmount - invoice.DiscountAmount + invoice.ShippingAmount
}

// recordHistory appends a best-effort status-history row with a JSON
// totals snapshot.
func (s *InvoiceService) recordHistory(invoice *models.Invoice, oldStatus, newStatus, reason string, changedBy *uuid.UUID) {
	snapshot, err := json.Marshal(map[string]interface{}{
		"subtotal":       invoice.Subtotal,
		"total_amount":   invoice.TotalAmount,
		"payment_status": invoice.PaymentStatus,
	})
	if err != nil {
		snapshot = nil
	}

	history := models.InvoiceStatusHistory{
		InvoiceID: invoice.ID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Reason:    reason,
		ChangedBy: changedBy,
		Snapshot:  datatypes.JSON(snapshot),
	}
	if err := s.db.Create(&history).Error; err != nil {
		log.Printf("[Invoice] History row failed for %s: %v", invoice.InvoiceNumber, err)
	}
}

func appendNote(existing, note string) string {
	stamped := fmt.Sprintf("[%s] %s", time.Now().Format("2006-01-02 15:04"), note)
	if existing == "" {
		return stamped
	}
	return existing + "\n" + stamped
}
