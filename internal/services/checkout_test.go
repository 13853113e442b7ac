package services

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/aswaq/internal/models"
	"github.com/example/aswaq/internal/utils"
)

func TestCheckoutTotals(t *testing.T) {
	db := testDB(t)
	svc := NewCheckoutService(db, nil)

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID, 3)

	productA := seedProduct(t, db, 10, floatPtr(12))
	productB := seedProduct(t, db, 5, floatPtr(5))
	seedCartItem(t, db, user.ID, productA.ID, 2)
	seedCartItem(t, db, user.ID, productB.ID, 1)

	result, err := svc.Checkout(user.ID, CheckoutInput{AddressID: address.ID})
	require.NoError(t, err)
	require.NotNil(t, result)

	var order models.Order
	require.NoError(t, db.Preload("Items").First(&order, "id = ?", result.OrderID).Error)

	assert.InDelta(t, 25, order.Subtotal, 0.01)
	assert.InDelta(t, 4, order.Discount, 0.01)
	assert.InDelta(t, 3, order.DeliveryFee, 0.01)
	assert.InDelta(t, 28, order.TotalPrice, 0.01)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Len(t, order.Items, 2)
	assert.Equal(t, result.OrderCode, order.OrderCode)
}

func TestCheckoutCreatesSingleHistoryRowAndClearsCart(t *testing.T) {
	db := testDB(t)
	svc := NewCheckoutService(db, nil)

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID, 0)
	product := seedProduct(t, db, 10, nil)
	seedCartItem(t, db, user.ID, product.ID, 1)

	result, err := svc.Checkout(user.ID, CheckoutInput{AddressID: address.ID})
	require.NoError(t, err)

	var history []models.OrderStatusHistory
	require.NoError(t, db.Where("order_id = ?", result.OrderID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, models.OrderStatusPending, history[0].Status)

	var active int64
	require.NoError(t, db.Model(&models.CartItem{}).
		Where("user_id = ? AND is_deleted = ?", user.ID, false).
		Count(&active).Error)
	assert.Zero(t, active)
}

func TestCheckoutEmptyCartRejects(t *testing.T) {
	db := testDB(t)
	svc := NewCheckoutService(db, nil)

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID, 3)

	_, err := svc.Checkout(user.ID, CheckoutInput{AddressID: address.ID})
	assert.ErrorIs(t, err, ErrCartEmpty)

	var orders int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
}

func TestCheckoutForeignAddressRejects(t *testing.T) {
	db := testDB(t)
	svc := NewCheckoutService(db, nil)

	user := seedUser(t, db)
	other := seedUser(t, db)
	foreignAddress := seedAddress(t, db, other.ID, 3)

	product := seedProduct(t, db, 10, nil)
	seedCartItem(t, db, user.ID, product.ID, 1)

	_, err := svc.Checkout(user.ID, CheckoutInput{AddressID: foreignAddress.ID})
	assert.ErrorIs(t, err, ErrAddressNotFound)

	// The rejection must leave the cart untouched.
	var active int64
	require.NoError(t, db.Model(&models.CartItem{}).
		Where("user_id = ? AND is_deleted = ?", user.ID, false).
		Count(&active).Error)
	assert.EqualValues(t, 1, active)
}

func TestCheckoutMissingOldPriceMeansZeroDiscount(t *testing.T) {
	db := testDB(t)
	svc := NewCheckoutService(db, nil)

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID, 0)
	product := seedProduct(t, db, 7.5, nil)
	seedCartItem(t, db, user.ID, product.ID, 4)

	result, err := svc.Checkout(user.ID, CheckoutInput{AddressID: address.ID})
	require.NoError(t, err)

	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", result.OrderID).Error)
	assert.InDelta(t, 30, order.Subtotal, 0.01)
	assert.InDelta(t, 0, order.Discount, 0.01)
	assert.InDelta(t, 30, order.TotalPrice, 0.01)
}

func TestCheckoutWithVoucher(t *testing.T) {
	db := testDB(t)
	svc := NewCheckoutService(db, nil)

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID, 5)
	product := seedProduct(t, db, 100, nil)
	seedCartItem(t, db, user.ID, product.ID, 1)

	voucher := &models.Voucher{
		Code:         "TEN-OFF",
		DiscountType: models.VoucherTypePercent,
		Value:        10,
		IsActive:     true,
	}
	require.NoError(t, db.Create(voucher).Error)

	result, err := svc.Checkout(user.ID, CheckoutInput{AddressID: address.ID, VoucherCode: "TEN-OFF"})
	require.NoError(t, err)

	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", result.OrderID).Error)
	assert.InDelta(t, 95, order.TotalPrice, 0.01) // 100 + 5 - 10
	assert.Equal(t, "TEN-OFF", order.VoucherCode)
}

func TestCheckoutExpiredVoucherRejects(t *testing.T) {
	db := testDB(t)
	svc := NewCheckoutService(db, nil)

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID, 0)
	product := seedProduct(t, db, 10, nil)
	seedCartItem(t, db, user.ID, product.ID, 1)

	expired := time.Now().Add(-time.Hour)
	voucher := &models.Voucher{
		Code:         "LATE",
		DiscountType: models.VoucherTypeFixed,
		Value:        5,
		IsActive:     true,
		ExpiresAt:    &expired,
	}
	require.NoError(t, db.Create(voucher).Error)

	_, err := svc.Checkout(user.ID, CheckoutInput{AddressID: address.ID, VoucherCode: "LATE"})
	assert.ErrorIs(t, err, ErrVoucherInvalid)
}

func TestDirectCheckout(t *testing.T) {
	db := testDB(t)
	svc := NewCheckoutService(db, nil)

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID, 2)
	product := seedProduct(t, db, 20, floatPtr(25))

	// A cart line must survive a direct checkout untouched.
	seedCartItem(t, db, user.ID, product.ID, 1)

	result, err := svc.DirectCheckout(user.ID, DirectCheckoutInput{
		ProductID: product.ID,
		Quantity:  3,
		Size:      "L",
		AddressID: address.ID,
	})
	require.NoError(t, err)

	var order models.Order
	require.NoError(t, db.Preload("Items").First(&order, "id = ?", result.OrderID).Error)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assert.Equal(t, "L", order.Items[0].Size)
	assert.InDelta(t, 62, order.TotalPrice, 0.01) // 60 + 2

	var active int64
	require.NoError(t, db.Model(&models.CartItem{}).
		Where("user_id = ? AND is_deleted = ?", user.ID, false).
		Count(&active).Error)
	assert.EqualValues(t, 1, active)
}

func TestDirectCheckoutValidation(t *testing.T) {
	db := testDB(t)
	svc := NewCheckoutService(db, nil)

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID, 0)
	product := seedProduct(t, db, 10, nil)

	_, err := svc.DirectCheckout(user.ID, DirectCheckoutInput{
		ProductID: product.ID,
		Quantity:  0,
		AddressID: address.ID,
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	missing := seedUser(t, db) // unrelated row, just a fresh uuid source
	_, err = svc.DirectCheckout(user.ID, DirectCheckoutInput{
		ProductID: missing.ID,
		Quantity:  1,
		AddressID: address.ID,
	})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestUpdateOrderStatusByCode(t *testing.T) {
	db := testDB(t)
	svc := NewCheckoutService(db, nil)

	user := seedUser(t, db)
	address := seedAddress(t, db, user.ID, 0)
	product := seedProduct(t, db, 10, nil)
	seedCartItem(t, db, user.ID, product.ID, 1)

	result, err := svc.Checkout(user.ID, CheckoutInput{AddressID: address.ID})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateOrderStatus(nil, result.OrderCode, models.OrderStatusShipped, "on the way", user.ID))

	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", result.OrderID).Error)
	assert.Equal(t, models.OrderStatusShipped, order.Status)
	assert.Equal(t, "on the way", order.Note)

	var history []models.OrderStatusHistory
	require.NoError(t, db.Where("order_id = ?", result.OrderID).Order("created_at asc").Find(&history).Error)
	require.Len(t, history, 2)
	assert.Equal(t, models.OrderStatusShipped, history[1].Status)

	err = svc.UpdateOrderStatus(nil, "NO-SUCH-CODE", models.OrderStatusShipped, "", user.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderCodeFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z2-9]{8}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code := utils.GenerateOrderCode()
		assert.Regexp(t, pattern, code)
		seen[code] = true
	}
	// 100 draws from a 32^8 space colliding would mean a broken generator.
	assert.Greater(t, len(seen), 95)
}
