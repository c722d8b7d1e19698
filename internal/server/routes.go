package server

import (
	"net/http"

	"storefront/internal/config"
	"storefront/internal/repository"

	"github.com/labstack/echo/v4"
)

type Dependencies struct {
	Handlers Handlers
	Users    repository.UserRepository
	Health   HealthFunc
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, deps Dependencies) {
	e.GET("/healthz", healthz(deps.Health))

	h := deps.Handlers
	h.Auth.RegisterRoutes(e, cfg, deps.Users)
	h.User.RegisterRoutes(e, cfg, deps.Users)
	h.Product.RegisterRoutes(e, cfg, deps.Users)
	h.AdminProduct.RegisterRoutes(e, cfg, deps.Users)
	h.Cart.RegisterRoutes(e, cfg, deps.Users)
	h.Order.RegisterRoutes(e, cfg, deps.Users)
	h.AdminOrder.RegisterRoutes(e, cfg, deps.Users)
}

func healthz(check HealthFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if check != nil {
			if err := check(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
