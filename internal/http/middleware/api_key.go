package middleware

import (
	"net/http"
	"strings"

	"github.com/jmehdipour/zoohub/internal/repository"
	echo "github.com/labstack/echo/v4"
)

// ProducerIDFromCtx extracts the authenticated producer_id set by APIKeyMiddleware.
func ProducerIDFromCtx(c echo.Context) (int64, bool) {
	v := c.Get("producer_id")
	id, ok := v.(int64)
	return id, ok
}

// APIKeyMiddleware authenticates requests using the X-API-Key header.
// On success it stores producer_id in context and blocks suspended accounts.
func APIKeyMiddleware(producers repository.ProducersRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			p, err := producers.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if p == nil || p.Status != "active" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set("producer_id", p.ID)
			if p.RateLimitRPS != nil {
				c.Set("producer_rps", *p.RateLimitRPS)
			}
			return next(c)
		}
	}
}
