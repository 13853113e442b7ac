package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/aswaq/internal/config"
	"github.com/example/aswaq/internal/handlers"
	"github.com/example/aswaq/internal/middleware"
	"github.com/example/aswaq/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	notifier := services.NewNotifier(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	checkoutService := services.NewCheckoutService(db, notifier)
	invoiceService := services.NewInvoiceService(db, notifier)

	authHandler := handlers.NewAuthHandler(db, cfg)
	productHandler := handlers.NewProductHandler(db)
	cartHandler := handlers.NewCartHandler(db)
	profileHandler := handlers.NewProfileHandler(db)
	orderHandler := handlers.NewOrderHandler(db, checkoutService)
	invoiceHandler := handlers.NewInvoiceHandler(db, invoiceService)
	voucherHandler := handlers.NewVoucherHandler(db)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Public catalog
	products := api.Group("/products")
	products.Get("/", productHandler.ListProducts)
	products.Get("/:id", productHandler.GetProduct)
	products.Get("/:id/reviews", productHandler.ListReviews)

	api.Get("/states", profileHandler.ListStates)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	protected.Get("/auth/me", authHandler.Me)

	protected.Post("/products/:id/reviews", productHandler.CreateReview)
	protected.Delete("/products/:id/reviews/:reviewId", productHandler.DeleteReview)

	protected.Get("/cart", cartHandler.ListCart)
	protected.Post("/cart", cartHandler.AddCartItem)
	protected.Put("/cart/:id", cartHandler.UpdateCartItem)
	protected.Delete("/cart/:id", cartHandler.RemoveCartItem)

	protected.Post("/favorites/:productId", cartHandler.ToggleFavorite)
	protected.Get("/favorites", cartHandler.ListFavorites)

	protected.Get("/profile", profileHandler.GetProfile)
	protected.Put("/profile", profileHandler.UpdateProfile)
	protected.Get("/profile/addresses", profileHandler.ListAddresses)
	protected.Post("/profile/addresses", profileHandler.CreateAddress)
	protected.Put("/profile/addresses/:id", profileHandler.UpdateAddress)
	protected.Delete("/profile/addresses/:id", profileHandler.DeleteAddress)

	protected.Post("/orders/checkout", orderHandler.Checkout)
	protected.Post("/orders/direct-checkout", orderHandler.DirectCheckout)
	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)

	protected.Post("/vouchers/validate", voucherHandler.ValidateVoucher)

	protected.Post("/invoices/from-order", invoiceHandler.CreateFromOrder)
	protected.Get("/invoices", invoiceHandler.List)
	protected.Get("/invoices/:id", invoiceHandler.Get)

	// Admin routes. Invoice mutation is back-office only; customers
	// read their invoices through the scoped list/get above.
	admin := protected.Group("", middleware.RequireAdmin())
	admin.Post("/products", productHandler.CreateProduct)
	admin.Put("/products/:id", productHandler.UpdateProduct)
	admin.Delete("/products/:id", productHandler.DeleteProduct)
	admin.Post("/states", profileHandler.CreateState)
	admin.Put("/orders/status", orderHandler.UpdateStatus)
	admin.Get("/vouchers", voucherHandler.ListVouchers)
	admin.Post("/vouchers", voucherHandler.CreateVoucher)
	admin.Post("/invoices", invoiceHandler.Create)
	admin.Patch("/invoices/status", invoiceHandler.UpdateStatus)
	admin.Patch("/invoices/mark-paid", invoiceHandler.MarkPaid)
	admin.Post("/invoices/items", invoiceHandler.AddItem)
	admin.Put("/invoices/items", invoiceHandler.UpdateItem)
	admin.Delete("/invoices/items", invoiceHandler.DeleteItem)
	admin.Delete("/invoices", invoiceHandler.Delete)
}
