package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/aswaq/internal/models"
)

func seedInvoice(t *testing.T, db *gorm.DB, status, paymentStatus string, manual bool) *models.Invoice {
	t.Helper()
	invoice := &models.Invoice{
		InvoiceNumber: "INV-TEST-" + uuid.NewString()[:8],
		Status:        status,
		PaymentStatus: paymentStatus,
		IsManual:      manual,
	}
	require.NoError(t, db.Create(invoice).Error)
	return invoice
}

func seedInvoiceItem(t *testing.T, db *gorm.DB, invoiceID uuid.UUID, sku string, qty int, unitPrice float64) *models.InvoiceItem {
	t.Helper()
	item := &models.InvoiceItem{
		InvoiceID:  invoiceID,
		SKU:        sku,
		Quantity:   qty,
		UnitPrice:  unitPrice,
		TotalPrice: float64(qty) * unitPrice,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func refreshInvoice(t *testing.T, db *gorm.DB, id uuid.UUID) models.Invoice {
	t.Helper()
	var invoice models.Invoice
	require.NoError(t, db.First(&invoice, "id = ?", id).Error)
	return invoice
}

func TestTransitionTable(t *testing.T) {
	statuses := []string{
		models.InvoiceStatusDraft,
		models.InvoiceStatusSent,
		models.InvoiceStatusPaid,
		models.InvoiceStatusOverdue,
		models.InvoiceStatusCancelled,
		models.InvoiceStatusRefunded,
	}

	allowed := map[string]map[string]bool{
		models.InvoiceStatusDraft:   {models.InvoiceStatusSent: true, models.InvoiceStatusCancelled: true},
		models.InvoiceStatusSent:    {models.InvoiceStatusPaid: true, models.InvoiceStatusOverdue: true, models.InvoiceStatusCancelled: true},
		models.InvoiceStatusPaid:    {models.InvoiceStatusRefunded: true},
		models.InvoiceStatusOverdue: {models.InvoiceStatusPaid: true, models.InvoiceStatusCancelled: true},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			assert.Equal(t, allowed[from][to], CanTransition(from, to),
				"transition %s -> %s", from, to)
		}
	}
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	db := testDB(t)
	svc := NewInvoiceService(db, nil)
	user := seedUser(t, db)

	invoice := seedInvoice(t, db, models.InvoiceStatusDraft, models.PaymentStatusUnpaid, true)

	_, err := svc.UpdateStatus(invoice.ID, models.InvoiceStatusPaid, "", user.ID)
	var transition *TransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, models.InvoiceStatusDraft, transition.From)
	assert.Contains(t, transition.Allowed, models.InvoiceStatusSent)

	// Rejection must leave both status fields unchanged.
	got := refreshInvoice(t, db, invoice.ID)
	assert.Equal(t, models.InvoiceStatusDraft, got.Status)
	assert.Equal(t, models.PaymentStatusUnpaid, got.PaymentStatus)
}

func TestUpdateStatusSideEffects(t *testing.T) {
	db := testDB(t)
	svc := NewInvoiceService(db, nil)
	user := seedUser(t, db)

	t.Run("paid sets payment status and date", func(t *testing.T) {
		invoice := seedInvoice(t, db, models.InvoiceStatusSent, models.PaymentStatusUnpaid, true)
		got, err := svc.UpdateStatus(invoice.ID, models.InvoiceStatusPaid, "wire received", user.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvoiceStatusPaid, got.Status)
		assert.Equal(t, models.PaymentStatusPaid, got.PaymentStatus)
		assert.NotNil(t, got.PaymentDate)
		assert.Contains(t, got.InternalNotes, "wire received")
	})

	t.Run("refunded sets payment status", func(t *testing.T) {
		invoice := seedInvoice(t, db, models.InvoiceStatusPaid, models.PaymentStatusPaid, true)
		got, err := svc.UpdateStatus(invoice.ID, models.InvoiceStatusRefunded, "", user.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusRefunded, got.PaymentStatus)
	})

	t.Run("cancelled sets payment status failed", func(t *testing.T) {
		invoice := seedInvoice(t, db, models.InvoiceStatusSent, models.PaymentStatusUnpaid, true)
		got, err := svc.UpdateStatus(invoice.ID, models.InvoiceStatusCancelled, "customer backed out", user.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusFailed, got.PaymentStatus)
	})

	t.Run("history row recorded", func(t *testing.T) {
		invoice := seedInvoice(t, db, models.InvoiceStatusDraft, models.PaymentStatusUnpaid, true)
		_, err := svc.UpdateStatus(invoice.ID, models.InvoiceStatusSent, "issued", user.ID)
		require.NoError(t, err)

		var history []models.InvoiceStatusHistory
		require.NoError(t, db.Where("invoice_id = ?", invoice.ID).Find(&history).Error)
		require.Len(t, history, 1)
		assert.Equal(t, models.InvoiceStatusDraft, history[0].OldStatus)
		assert.Equal(t, models.InvoiceStatusSent, history[0].NewStatus)
	})

	t.Run("missing invoice", func(t *testing.T) {
		_, err := svc.UpdateStatus(uuid.New(), models.InvoiceStatusSent, "", user.ID)
		assert.ErrorIs(t, err, ErrInvoiceNotFound)
	})
}

func TestMarkPaid(t *testing.T) {
	db := testDB(t)
	svc := NewInvoiceService(db, nil)

	t.Run("partial payment leaves status alone", func(t *testing.T) {
		invoice := seedInvoice(t, db, models.InvoiceStatusSent, models.PaymentStatusUnpaid, true)
		require.NoError(t, db.Model(invoice).Update("total_amount", 100).Error)

		got, err := svc.MarkPaid(invoice.ID, MarkPaidInput{
			PaymentMethod: "card",
			PaymentAmount: floatPtr(40),
		})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusPartial, got.PaymentStatus)
		assert.Equal(t, models.InvoiceStatusSent, got.Status)
	})

	t.Run("full payment promotes status", func(t *testing.T) {
		invoice := seedInvoice(t, db, models.InvoiceStatusSent, models.PaymentStatusUnpaid, true)
		require.NoError(t, db.Model(invoice).Update("total_amount", 100).Error)

		got, err := svc.MarkPaid(invoice.ID, MarkPaidInput{
			PaymentMethod: "card",
			PaymentAmount: floatPtr(100),
		})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusPaid, got.PaymentStatus)
		assert.Equal(t, models.InvoiceStatusPaid, got.Status)

		var payments []models.Payment
		require.NoError(t, db.Where("invoice_id = ?", invoice.ID).Find(&payments).Error)
		require.Len(t, payments, 1)
		assert.InDelta(t, 100, payments[0].Amount, 0.01)
	})

	t.Run("omitted amount means full payment", func(t *testing.T) {
		invoice := seedInvoice(t, db, models.InvoiceStatusSent, models.PaymentStatusUnpaid, true)
		require.NoError(t, db.Model(invoice).Update("total_amount", 55).Error)

		got, err := svc.MarkPaid(invoice.ID, MarkPaidInput{PaymentMethod: "cash"})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusPaid, got.PaymentStatus)
	})

	t.Run("already paid rejects", func(t *testing.T) {
		invoice := seedInvoice(t, db, models.InvoiceStatusPaid, models.PaymentStatusPaid, true)
		_, err := svc.MarkPaid(invoice.ID, MarkPaidInput{PaymentMethod: "card"})
		assert.ErrorIs(t, err, ErrAlreadyPaid)
	})

	t.Run("cancelled rejects", func(t *testing.T) {
		invoice := seedInvoice(t, db, models.InvoiceStatusCancelled, models.PaymentStatusFailed, true)
		_, err := svc.MarkPaid(invoice.ID, MarkPaidInput{PaymentMethod: "card"})
		assert.ErrorIs(t, err, ErrInvoiceCancelled)
	})

	t.Run("refunded stays refunded", func(t *testing.T) {
		invoice := seedInvoice(t, db, models.InvoiceStatusRefunded, models.PaymentStatusRefunded, true)
		require.NoError(t, db.Model(invoice).Update("total_amount", 100).Error)

		_, err := svc.MarkPaid(invoice.ID, MarkPaidInput{PaymentMethod: "card"})
		assert.ErrorIs(t, err, ErrInvoiceRefunded)

		got := refreshInvoice(t, db, invoice.ID)
		assert.Equal(t, models.InvoiceStatusRefunded, got.Status)
		assert.Equal(t, models.PaymentStatusRefunded, got.PaymentStatus)
	})

	t.Run("non-positive amount rejects", func(t *testing.T) {
		invoice := seedInvoice(t, db, models.InvoiceStatusSent, models.PaymentStatusUnpaid, true)
		require.NoError(t, db.Model(invoice).Update("total_amount", 100).Error)

		_, err := svc.MarkPaid(invoice.ID, MarkPaidInput{
			PaymentMethod: "card",
			PaymentAmount: floatPtr(-5),
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = svc.MarkPaid(invoice.ID, MarkPaidInput{
			PaymentMethod: "card",
			PaymentAmount: floatPtr(0),
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)

		got := refreshInvoice(t, db, invoice.ID)
		assert.Equal(t, models.PaymentStatusUnpaid, got.PaymentStatus)

		var payments int64
		require.NoError(t, db.Model(&models.Payment{}).Where("invoice_id = ?", invoice.ID).Count(&payments).Error)
		assert.Zero(t, payments)
	})
}

func TestCreateManualInvoice(t *testing.T) {
	db := testDB(t)
	svc := NewInvoiceService(db, nil)
	user := seedUser(t, db)

	product := seedProduct(t, db, 20, nil)

	t.Run("billing must be exactly one source", func(t *testing.T) {
		_, _, err := svc.CreateManual(user.ID, CreateInvoiceInput{
			Items: []InvoiceItemInput{{SKU: product.SKU, Quantity: 1}},
		})
		assert.ErrorIs(t, err, ErrBillingRequired)

		addressID := uuid.New()
		_, _, err = svc.CreateManual(user.ID, CreateInvoiceInput{
			AddressID: &addressID,
			Billing:   &BillingDetails{CustomerName: "Both"},
			Items:     []InvoiceItemInput{{SKU: product.SKU, Quantity: 1}},
		})
		assert.ErrorIs(t, err, ErrBillingRequired)
	})

	t.Run("resolves sku and applies manual formula", func(t *testing.T) {
		invoice, failures, err := svc.CreateManual(user.ID, CreateInvoiceInput{
			Billing: &BillingDetails{CustomerName: "Walk-in"},
			Items: []InvoiceItemInput{
				{SKU: product.SKU, Quantity: 2, UnitPrice: floatPtr(20)},
				{SKU: "MANUAL-1", Quantity: 1, UnitPrice: floatPtr(15)},
			},
			DiscountAmount: 5,
		})
		require.NoError(t, err)
		assert.Empty(t, failures)

		assert.InDelta(t, 55, invoice.Subtotal, 0.01)
		assert.InDelta(t, 50, invoice.TotalAmount, 0.01)
		assert.True(t, invoice.IsManual)
		assert.Equal(t, models.InvoiceStatusDraft, invoice.Status)
		assert.Equal(t, "Product", invoice.Items[0].ProductNameEn)
	})

	t.Run("unresolved sku without price is a per-row failure", func(t *testing.T) {
		invoice, failures, err := svc.CreateManual(user.ID, CreateInvoiceInput{
			Billing: &BillingDetails{CustomerName: "Walk-in"},
			Items: []InvoiceItemInput{
				{SKU: product.SKU, Quantity: 1},
				{SKU: "GHOST-SKU", Quantity: 1},
			},
		})
		require.NoError(t, err)
		require.Len(t, failures, 1)
		assert.Equal(t, 1, failures[0].Index)
		assert.Equal(t, "GHOST-SKU", failures[0].SKU)
		assert.Len(t, invoice.Items, 1)
	})

	t.Run("all items invalid aborts", func(t *testing.T) {
		_, failures, err := svc.CreateManual(user.ID, CreateInvoiceInput{
			Billing: &BillingDetails{CustomerName: "Walk-in"},
			Items:   []InvoiceItemInput{{SKU: "GHOST-SKU", Quantity: 1}},
		})
		assert.ErrorIs(t, err, ErrNoValidItems)
		assert.Len(t, failures, 1)
	})

	t.Run("clones billing from owned address", func(t *testing.T) {
		address := seedAddress(t, db, user.ID, 0)
		require.NoError(t, db.Model(address).Updates(map[string]interface{}{
			"recipient_name": "Amina",
			"phone":          "+200000000",
		}).Error)

		invoice, _, err := svc.CreateManual(user.ID, CreateInvoiceInput{
			AddressID: &address.ID,
			Items:     []InvoiceItemInput{{SKU: product.SKU, Quantity: 1}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Amina", invoice.CustomerName)
		assert.Equal(t, "1 Main St", invoice.BillingAddressLine)
	})
}

func TestCreateFromOrder(t *testing.T) {
	db := testDB(t)
	checkout := NewCheckoutService(db, nil)
	svc := NewInvoiceService(db, nil)

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID, 3)
	product := seedProduct(t, db, 10, nil)
	seedCartItem(t, db, user.ID, product.ID, 2)

	result, err := checkout.Checkout(user.ID, CheckoutInput{AddressID: address.ID})
	require.NoError(t, err)

	invoice, err := svc.CreateFromOrder(result.OrderID, user.ID, false)
	require.NoError(t, err)
	assert.False(t, invoice.IsManual)
	assert.InDelta(t, 20, invoice.Subtotal, 0.01)
	// Order-derived formula: subtotal + tax - discount + shipping.
	assert.InDelta(t, 23, invoice.TotalAmount, 0.01)
	require.NotNil(t, invoice.OrderID)
	assert.Equal(t, result.OrderID, *invoice.OrderID)
	assert.Len(t, invoice.Items, 1)

	// Second derivation for the same order must conflict.
	_, err = svc.CreateFromOrder(result.OrderID, user.ID, false)
	assert.ErrorIs(t, err, ErrInvoiceExists)

	var count int64
	require.NoError(t, db.Model(&models.Invoice{}).Where("order_id = ?", result.OrderID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	_, err = svc.CreateFromOrder(uuid.New(), user.ID, false)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCreateFromOrderOwnership(t *testing.T) {
	db := testDB(t)
	checkout := NewCheckoutService(db, nil)
	svc := NewInvoiceService(db, nil)

	owner := seedUser(t, db)
	stranger := seedUser(t, db)
	address := seedAddress(t, db, owner.ID, 0)
	product := seedProduct(t, db, 10, nil)
	seedCartItem(t, db, owner.ID, product.ID, 1)

	result, err := checkout.Checkout(owner.ID, CheckoutInput{AddressID: address.ID})
	require.NoError(t, err)

	// Another customer cannot invoice the order.
	_, err = svc.CreateFromOrder(result.OrderID, stranger.ID, false)
	assert.ErrorIs(t, err, ErrNotOrderOwner)

	var count int64
	require.NoError(t, db.Model(&models.Invoice{}).Where("order_id = ?", result.OrderID).Count(&count).Error)
	assert.Zero(t, count)

	// An admin can, regardless of ownership.
	invoice, err := svc.CreateFromOrder(result.OrderID, stranger.ID, true)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, *invoice.UserID)
}

func TestItemMutationRecomputesTotals(t *testing.T) {
	db := testDB(t)
	svc := NewInvoiceService(db, nil)

	invoice := seedInvoice(t, db, models.InvoiceStatusDraft, models.PaymentStatusUnpaid, true)
	require.NoError(t, db.Model(invoice).Update("discount_amount", 5).Error)
	seedInvoiceItem(t, db, invoice.ID, "SKU-X", 2, 20)
	itemY := seedInvoiceItem(t, db, invoice.ID, "SKU-Y", 1, 15)

	got, err := svc.UpdateItem(invoice.ID, itemY.ID, UpdateItemInput{Quantity: intPtr(1)})
	require.NoError(t, err)
	assert.InDelta(t, 55, got.Subtotal, 0.01)
	assert.InDelta(t, 50, got.TotalAmount, 0.01)

	got, err = svc.DeleteItem(invoice.ID, itemY.ID)
	require.NoError(t, err)
	assert.InDelta(t, 40, got.Subtotal, 0.01)
	assert.InDelta(t, 35, got.TotalAmount, 0.01)
	assert.Len(t, got.Items, 1)

	// Deleting the same line twice is a miss.
	_, err = svc.DeleteItem(invoice.ID, itemY.ID)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestAddItemResolvesAndRecomputes(t *testing.T) {
	db := testDB(t)
	svc := NewInvoiceService(db, nil)

	product := seedProduct(t, db, 12.5, nil)
	invoice := seedInvoice(t, db, models.InvoiceStatusDraft, models.PaymentStatusUnpaid, true)

	got, err := svc.AddItem(invoice.ID, InvoiceItemInput{SKU: product.SKU, Quantity: 2})
	require.NoError(t, err)
	assert.InDelta(t, 25, got.Subtotal, 0.01)
	require.Len(t, got.Items, 1)
	assert.InDelta(t, 12.5, got.Items[0].UnitPrice, 0.01)

	_, err = svc.AddItem(invoice.ID, InvoiceItemInput{SKU: "GHOST", Quantity: 1})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestPaidInvoiceFreezesItems(t *testing.T) {
	db := testDB(t)
	svc := NewInvoiceService(db, nil)

	invoice := seedInvoice(t, db, models.InvoiceStatusPaid, models.PaymentStatusPaid, true)
	item := seedInvoiceItem(t, db, invoice.ID, "SKU-X", 1, 10)
	require.NoError(t, db.Model(invoice).Updates(map[string]interface{}{
		"subtotal": 10.0, "total_amount": 10.0,
	}).Error)

	_, err := svc.AddItem(invoice.ID, InvoiceItemInput{SKU: "ANY", Quantity: 1, UnitPrice: floatPtr(5)})
	assert.ErrorIs(t, err, ErrInvoiceFrozen)

	_, err = svc.UpdateItem(invoice.ID, item.ID, UpdateItemInput{Quantity: intPtr(5)})
	assert.ErrorIs(t, err, ErrInvoiceFrozen)

	_, err = svc.DeleteItem(invoice.ID, item.ID)
	assert.ErrorIs(t, err, ErrInvoiceFrozen)

	// Nothing moved.
	got := refreshInvoice(t, db, invoice.ID)
	assert.InDelta(t, 10, got.Subtotal, 0.01)
	var items int64
	require.NoError(t, db.Model(&models.InvoiceItem{}).
		Where("invoice_id = ? AND is_deleted = ?", invoice.ID, false).
		Count(&items).Error)
	assert.EqualValues(t, 1, items)
}

func TestDeleteInvoiceRules(t *testing.T) {
	db := testDB(t)
	svc := NewInvoiceService(db, nil)
	user := seedUser(t, db)

	t.Run("draft deletes normally and cascades", func(t *testing.T) {
		invoice := seedInvoice(t, db, models.InvoiceStatusDraft, models.PaymentStatusUnpaid, true)
		seedInvoiceItem(t, db, invoice.ID, "SKU-X", 1, 10)

		require.NoError(t, svc.Delete(invoice.ID, false, "", user.ID, false))

		got := refreshInvoice(t, db, invoice.ID)
		assert.True(t, got.IsDeleted)

		var live int64
		require.NoError(t, db.Model(&models.InvoiceItem{}).
			Where("invoice_id = ? AND is_deleted = ?", invoice.ID, false).
			Count(&live).Error)
		assert.Zero(t, live)

		// No reason given, so the history note is just "deleted".
		var history []models.InvoiceStatusHistory
		require.NoError(t, db.Where("invoice_id = ?", invoice.ID).Find(&history).Error)
		require.Len(t, history, 1)
		assert.Equal(t, "deleted", history[0].Reason)
	})

	t.Run("paid invoice needs force", func(t *testing.T) {
		invoice := seedInvoice(t, db, models.InvoiceStatusPaid, models.PaymentStatusPaid, true)
		err := svc.Delete(invoice.ID, false, "", user.ID, false)
		assert.ErrorIs(t, err, ErrDeleteBlocked)
	})

	t.Run("force needs reason then admin", func(t *testing.T) {
		invoice := seedInvoice(t, db, models.InvoiceStatusPaid, models.PaymentStatusPaid, true)

		err := svc.Delete(invoice.ID, true, "", user.ID, true)
		assert.ErrorIs(t, err, ErrReasonRequired)

		err = svc.Delete(invoice.ID, true, "chargeback", user.ID, false)
		assert.ErrorIs(t, err, ErrForceForbidden)

		require.NoError(t, svc.Delete(invoice.ID, true, "chargeback", user.ID, true))
		assert.True(t, refreshInvoice(t, db, invoice.ID).IsDeleted)
	})

	t.Run("delivered order blocks normal delete", func(t *testing.T) {
		checkout := NewCheckoutService(db, nil)
		address := seedAddress(t, db, user.ID, 0)
		product := seedProduct(t, db, 10, nil)
		seedCartItem(t, db, user.ID, product.ID, 1)

		result, err := checkout.Checkout(user.ID, CheckoutInput{AddressID: address.ID})
		require.NoError(t, err)
		invoice, err := svc.CreateFromOrder(result.OrderID, user.ID, false)
		require.NoError(t, err)

		require.NoError(t, checkout.UpdateOrderStatus(&result.OrderID, "", models.OrderStatusDelivered, "", user.ID))

		err = svc.Delete(invoice.ID, false, "", user.ID, false)
		assert.ErrorIs(t, err, ErrDeleteBlocked)

		require.NoError(t, svc.Delete(invoice.ID, true, "duplicate", user.ID, true))
	})

	t.Run("missing invoice", func(t *testing.T) {
		err := svc.Delete(uuid.New(), false, "", user.ID, false)
		assert.ErrorIs(t, err, ErrInvoiceNotFound)
	})
}

func TestInvoiceTotalFormulas(t *testing.T) {
	manual := &models.Invoice{IsManual: true, Subtotal: 100, DiscountAmount: 10, DeliveryFee: 5}
	assert.InDelta(t, 95, invoiceTotal(manual), 0.01)

	derived := &models.Invoice{IsManual: false, Subtotal: 100, TaxAmount: 15, DiscountAmount: 10, ShippingAmount: 5}
	assert.InDelta(t, 110, invoiceTotal(derived), 0.01)
}

func intPtr(v int) *int { return &v }
