package services

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/aswaq/internal/database"
	"github.com/example/aswaq/internal/models"
)

// testDB opens an isolated in-memory database with the full schema.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := &models.User{
		FirstName: "Test",
		LastName:  "User",
		Email:     uuid.NewString() + "@example.com",
		Phone:     "+100000000",
		Role:      models.RoleCustomer,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedAddress(t *testing.T, db *gorm.DB, userID uuid.UUID, deliveryFee float64) *models.UserAddress {
	t.Helper()
	state := &models.State{NameEn: "Central", DeliveryFee: deliveryFee}
	require.NoError(t, db.Create(state).Error)

	address := &models.UserAddress{
		UserID:      userID,
		StateID:     &state.ID,
		AddressLine: "1 Main St",
		City:        "Capital",
	}
	require.NoError(t, db.Create(address).Error)
	return address
}

func seedProduct(t *testing.T, db *gorm.DB, price float64, oldPrice *float64) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:      "SKU-" + uuid.NewString()[:8],
		NameEn:   "Product",
		NameAr:   "منتج",
		Price:    price,
		OldPrice: oldPrice,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func seedCartItem(t *testing.T, db *gorm.DB, userID, productID uuid.UUID, quantity int) *models.CartItem {
	t.Helper()
	item := &models.CartItem{UserID: userID, ProductID: productID, Quantity: quantity}
	require.NoError(t, db.Create(item).Error)
	return item
}

func floatPtr(v float64) *float64 { return &v }
