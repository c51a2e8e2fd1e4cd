package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/pharmacy_shop/internal/guard"
	"github.com/Skotchmaster/pharmacy_shop/internal/role"
	"github.com/Skotchmaster/pharmacy_shop/internal/storefront"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
	"github.com/Skotchmaster/pharmacy_shop/pkg/middleware/csrf"
)

// Check is a named readiness check.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type Deps struct {
	Registry      *storefront.Registry
	Guard         *guard.Guard
	SecureCookies bool
	// CSRF is applied to /api/v1 when set.
	CSRF   *csrf.Config
	Checks []Check

	AuthHandler      *AuthHTTP
	RoleHandler      *RoleHTTP
	CatalogHandler   *CatalogHTTP
	CartHandler      *CartHTTP
	CheckoutHandler  *CheckoutHTTP
	DashboardHandler *DashboardHTTP
	AdminHandler     *AdminHTTP
	SellerHandler    *SellerHTTP
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", ready(d.Checks))

	v1 := e.Group("/api/v1")
	if d.CSRF != nil {
		v1.Use(csrf.Middleware(*d.CSRF))
	}
	v1.Use(d.Registry.Mount(d.SecureCookies))

	auth := v1.Group("/auth")
	auth.POST("/signup", d.AuthHandler.SignUp)
	auth.POST("/signin", d.AuthHandler.SignIn)
	auth.POST("/social", d.AuthHandler.SocialLogin)
	auth.POST("/signout", d.AuthHandler.SignOut)
	auth.POST("/reset", d.AuthHandler.ResetPassword)
	auth.GET("/session", d.AuthHandler.GetSession)
	auth.PATCH("/profile", d.AuthHandler.UpdateProfile, d.Guard.RequireSession)

	me := v1.Group("/me", d.Guard.RequireSession)
	me.GET("/role", d.RoleHandler.GetRole)
	me.POST("/role/refetch", d.RoleHandler.Refetch)

	v1.GET("/categories", d.CatalogHandler.Categories)
	v1.GET("/categories/:id/medicines", d.CatalogHandler.CategoryMedicines)
	v1.GET("/medicines", d.CatalogHandler.Medicines)
	v1.GET("/medicines/:id", d.CatalogHandler.Medicine)
	v1.GET("/search", d.CatalogHandler.SearchMedicines)
	v1.GET("/advertisements", d.CatalogHandler.Advertisements)

	cart := v1.Group("/cart")
	cart.GET("", d.CartHandler.GetCart)
	cart.DELETE("", d.CartHandler.ClearCart)
	cart.POST("/items", d.CartHandler.AddToCart)
	cart.PATCH("/items/:id", d.CartHandler.UpdateQuantity)
	cart.DELETE("/items/:id", d.CartHandler.RemoveItem)

	v1.POST("/checkout", d.CheckoutHandler.Checkout, d.Guard.RequireSession)

	dash := v1.Group("/dashboard", d.Guard.RequireSession)
	dash.GET("/menu", d.DashboardHandler.GetMenu)
	dash.GET("/orders", d.DashboardHandler.MyOrders)
	dash.GET("/payments", d.DashboardHandler.MyPayments)

	admin := dash.Group("/admin", d.Guard.RequireRole(role.Admin))
	admin.GET("/users", d.AdminHandler.Users)
	admin.PATCH("/users/:id/role", d.AdminHandler.SetUserRole)
	admin.POST("/categories", d.AdminHandler.CreateCategory)
	admin.PATCH("/categories/:id", d.AdminHandler.UpdateCategory)
	admin.DELETE("/categories/:id", d.AdminHandler.DeleteCategory)
	admin.GET("/advertisements", d.AdminHandler.Advertisements)
	admin.POST("/advertisements", d.AdminHandler.CreateAdvertisement)
	admin.PATCH("/advertisements/:id", d.AdminHandler.UpdateAdvertisement)
	admin.DELETE("/advertisements/:id", d.AdminHandler.DeleteAdvertisement)
	admin.GET("/payments", d.AdminHandler.SalesReport)
	admin.PATCH("/payments/:id", d.AdminHandler.SetPaymentStatus)

	seller := dash.Group("/seller", d.Guard.RequireRole(role.Seller))
	seller.GET("/medicines", d.SellerHandler.Medicines)
	seller.POST("/medicines", d.SellerHandler.CreateMedicine)
	seller.PATCH("/medicines/:id", d.SellerHandler.UpdateMedicine)
	seller.DELETE("/medicines/:id", d.SellerHandler.DeleteMedicine)
	seller.GET("/payments", d.SellerHandler.Sales)
	seller.GET("/advertisements", d.SellerHandler.Advertisements)
	seller.POST("/advertisements", d.SellerHandler.RequestAdvertisement)
}

func ready(checks []Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		l := logging.FromContext(ctx)

		failed := map[string]string{}
		for _, ch := range checks {
			if err := ch.Fn(ctx); err != nil {
				l.Warn("readiness_check_failed", "check", ch.Name, "error", err)
				failed[ch.Name] = err.Error()
			}
		}
		if len(failed) > 0 {
			return c.JSON(http.StatusServiceUnavailable, failed)
		}
		return c.NoContent(http.StatusOK)
	}
}
