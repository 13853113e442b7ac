package services

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aswaq/internal/models"
	"github.com/example/aswaq/internal/utils"
)

const orderCodeAttempts = 3

// CheckoutService converts carts into immutable order snapshots. Every
// checkout runs inside a single transaction: order, order items, the
// initial status-history row and the cart clear commit or roll back
// together.
type CheckoutService struct {
	db       *gorm.DB
	notifier *Notifier
}

// NewCheckoutService constructs CheckoutService.
func NewCheckoutService(db *gorm.DB, notifier *Notifier) *CheckoutService {
	return &CheckoutService{db: db, notifier: notifier}
}

// CheckoutInput carries the user-supplied checkout parameters.
type CheckoutInput struct {
	AddressID   uuid.UUID
	Note        string
	VoucherCode string
}

// DirectCheckoutInput synthesizes a single-item order without a cart.
type DirectCheckoutInput struct {
	ProductID   uuid.UUID
	Quantity    int
	Size        string
	Color       string
	AddressID   uuid.UUID
	Note        string
	VoucherCode string
}

// CheckoutResult identifies the created order.
type CheckoutResult struct {
	OrderID    uuid.UUID `json:"order_id"`
	OrderCode  string    `json:"order_code"`
	TotalPrice float64   `json:"total_price"`
}

type orderLine struct {
	ProductID uuid.UUID
	Quantity  int
	Size      string
	Color     string
}

// Checkout converts all of the user's active cart items into one order
// and clears the cart.
func (s *CheckoutService) Checkout(userID uuid.UUID, in CheckoutInput) (*CheckoutResult, error) {
	var result *CheckoutResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var items []models.CartItem
		if err := lockForUpdate(tx).Scopes(models.NotDeleted).
			Where("user_id = ?", userID).Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrCartEmpty
		}

		lines := make([]orderLine, 0, len(items))
		for _, item := range items {
			lines = append(lines, orderLine{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Size:      item.Size,
				Color:     item.Color,
			})
		}

		order, err := s.assembleOrder(tx, userID, lines, in.AddressID, in.Note, in.VoucherCode)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.CartItem{}).
			Where("user_id = ? AND is_deleted = ?", userID, false).
			Updates(map[string]interface{}{"is_deleted": true, "updated_at": time.Now()}).Error; err != nil {
			return err
		}

		result = &CheckoutResult{OrderID: order.ID, OrderCode: order.OrderCode, TotalPrice: order.TotalPrice}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatchOrderNotification(userID, result)
	return result, nil
}

// DirectCheckout places a single-item order straight from a product,
// skipping the cart read and the cart clear.
func (s *CheckoutService) DirectCheckout(userID uuid.UUID, in DirectCheckoutInput) (*CheckoutResult, error) {
	if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	var result *CheckoutResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.Scopes(models.NotDeleted).
			First(&product, "id = ?", in.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return err
		}

		lines := []orderLine{{
			ProductID: product.ID,
			Quantity:  in.Quantity,
			Size:      in.Size,
			Color:     in.Color,
		}}

		order, err := s.assembleOrder(tx, userID, lines, in.AddressID, in.Note, in.VoucherCode)
		if err != nil {
			return err
		}

		result = &CheckoutResult{OrderID: order.ID, OrderCode: order.OrderCode, TotalPrice: order.TotalPrice}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatchOrderNotification(userID, result)
	return result, nil
}

// assembleOrder runs the shared tail of both checkout variants:
// price resolution, fee resolution, totals, order + items + initial
// history row.
func (s *CheckoutService) assembleOrder(tx *gorm.DB, userID uuid.UUID, lines []orderLine, addressID uuid.UUID, note, voucherCode string) (*models.Order, error) {
	productIDs := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		productIDs = append(productIDs, line.ProductID)
	}

	var products []models.Product
	if err := tx.Scopes(models.NotDeleted).
		Where("id IN ?", productIDs).Find(&products).Error; err != nil {
		return nil, err
	}
	priceByProduct := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		priceByProduct[p.ID] = p
	}

	var subtotal, discount float64
	orderItems := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, ok := priceByProduct[line.ProductID]
		// A vanished product contributes zero, the line is still
		// carried on the order for traceability.
		price := 0.0
		oldPrice := 0.0
		if ok {
			price = product.Price
			oldPrice = price
			if product.OldPrice != nil {
				oldPrice = *product.OldPrice
			}
		}

		qty := float64(line.Quantity)
		subtotal += price * qty
		discount += (oldPrice - price) * qty

		orderItems = append(orderItems, models.OrderItem{
			ProductID: line.ProductID,
			SKU:       product.SKU,
			NameEn:    product.NameEn,
			NameAr:    product.NameAr,
			Quantity:  line.Quantity,
			UnitPrice: price,
			Size:      line.Size,
			Color:     line.Color,
		})
	}

	var address models.UserAddress
	if err := tx.Scopes(models.NotDeleted).Preload("State").
		First(&address, "id = ? AND user_id = ?", addressID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}

	deliveryFee := 0.0
	if address.State != nil {
		deliveryFee = address.State.DeliveryFee
	}

	voucherDiscount := 0.0
	if voucherCode != "" {
		voucher, err := s.resolveVoucher(tx, voucherCode)
		if err != nil {
			return nil, err
		}
		voucherDiscount = voucher.DiscountOn(subtotal)
	}

	order := &models.Order{
		UserID:      userID,
		AddressID:   &address.ID,
		Status:      models.OrderStatusPending,
		UserNote:    note,
		Subtotal:    subtotal,
		Discount:    discount,
		DeliveryFee: deliveryFee,
		TotalPrice:  subtotal + deliveryFee - voucherDiscount,
		VoucherCode: voucherCode,
		PlacedAt:    time.Now(),
		Items:       orderItems,
	}

	if err := s.createWithFreshCode(tx, order); err != nil {
		return nil, err
	}

	history := models.OrderStatusHistory{
		OrderID:   order.ID,
		Status:    models.OrderStatusPending,
		ChangedBy: &userID,
		Note:      "order placed",
	}
	if err := tx.Create(&history).Error; err != nil {
		return nil, err
	}

	return order, nil
}

// createWithFreshCode inserts the order, regenerating the order code
// on a duplicate-key conflict. The unique index makes collisions
// loud; retrying makes them harmless.
func (s *CheckoutService) createWithFreshCode(tx *gorm.DB, order *models.Order) error {
	var err error
	for attempt := 0; attempt < orderCodeAttempts; attempt++ {
		order.OrderCode = utils.GenerateOrderCode()
		err = tx.Create(order).Error
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
	}
	return err
}

func (s *CheckoutService) resolveVoucher(tx *gorm.DB, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := tx.First(&voucher, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVoucherInvalid
		}
		return nil, err
	}
	if !voucher.IsActive || voucher.Expired(time.Now()) {
		return nil, ErrVoucherInvalid
	}
	return &voucher, nil
}

// UpdateOrderStatus sets a new order status and appends the audit row.
// Orders are addressable by ID or by their human-shareable code.
func (s *CheckoutService) UpdateOrderStatus(orderID *uuid.UUID, orderCode, status, note string, changedBy uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		query := lockForUpdate(tx).Scopes(models.NotDeleted)
		var order models.Order
		var err error
		switch {
		case orderID != nil:
			err = query.First(&order, "id = ?", *orderID).Error
		case orderCode != "":
			err = query.First(&order, "order_code = ?", orderCode).Error
		default:
			return ErrOrderNotFound
		}
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		updates := map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}
		if note != "" {
			updates["note"] = note
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
			return err
		}

		history := models.OrderStatusHistory{
			OrderID:   order.ID,
			Status:    status,
			ChangedBy: &changedBy,
			Note:      note,
		}
		return tx.Create(&history).Error
	})
}

func (s *CheckoutService) dispatchOrderNotification(userID uuid.UUID, result *CheckoutResult) {
	if s.notifier == nil || result == nil {
		return
	}

	go func() {
		var user models.User
		name, phone := "", ""
		if err := s.db.First(&user, "id = ?", userID).Error; err == nil {
			name = user.FirstName + " " + user.LastName
			phone = user.Phone
		}

		var itemCount int64
		s.db.Model(&models.OrderItem{}).Where("order_id = ?", result.OrderID).Count(&itemCount)

		s.notifier.NotifyNewOrder(OrderNotification{
			OrderCode:  result.OrderCode,
			UserName:   name,
			UserPhone:  phone,
			ItemCount:  int(itemCount),
			TotalPrice: result.TotalPrice,
			Status:     models.OrderStatusPending,
		})
	}()
}
