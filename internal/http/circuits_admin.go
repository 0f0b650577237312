package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/zoohub/internal/repository"
	echo "github.com/labstack/echo/v4"
)

func listCircuitsHandler(circuits repository.CircuitsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		state := strings.ToUpper(strings.TrimSpace(c.QueryParam("state")))
		limit := 200
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}

		rows, err := circuits.List(c.Request().Context(), state, limit)
		if err != nil {
			c.Logger().Errorf("list circuits failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{"count": len(rows), "results": rows})
	}
}

// resetCircuitHandler forces a circuit back to CLOSED. Operator escape
// hatch for a target known to be healthy again.
func resetCircuitHandler(circuits repository.CircuitsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := strings.TrimSpace(c.Param("key"))
		if key == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "key is required"})
		}

		ok, err := circuits.Reset(c.Request().Context(), key)
		if err != nil {
			c.Logger().Errorf("reset circuit failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		return c.JSON(http.StatusOK, map[string]any{"key": key, "state": "CLOSED"})
	}
}
