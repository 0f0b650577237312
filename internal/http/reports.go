package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/zoohub/internal/repository"
	echo "github.com/labstack/echo/v4"
)

func listAttemptsHandler(chRepo repository.CHAttemptsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		eventID := strings.TrimSpace(c.QueryParam("event_id"))
		jobID := strings.TrimSpace(c.QueryParam("job_id"))
		status := strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))

		rows, err := chRepo.List(c.Request().Context(), eventID, jobID, status, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
