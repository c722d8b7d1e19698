package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// contextのis_adminを確認する。TokenVersionGuardの後ろで使う
func AdminRoleGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := c.Get(CtxUserIDKey).(int64); !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("Unauthorized", "unauthorized"))
			}

			isAdmin, _ := c.Get(CtxIsAdminKey).(bool)
			if !isAdmin {
				return c.JSON(http.StatusForbidden, errorJSON("AccessDenied", "admin only"))
			}
			return next(c)
		}
	}
}
