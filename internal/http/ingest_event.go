package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jmehdipour/zoohub/internal/ingest"
	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type ingestReq struct {
	Source  string `json:"source"`
	Type    string `json:"type"`
	Subject struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
	} `json:"subject"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt *time.Time      `json:"occurredAt"`
}

func ingestEventHandler(svc *ingest.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req ingestReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		in := ingest.Input{
			Source:         strings.TrimSpace(req.Source),
			Type:           strings.TrimSpace(req.Type),
			Subject:        model.Subject{Kind: req.Subject.Kind, ID: req.Subject.ID},
			Payload:        req.Payload,
			IdempotencyKey: strings.TrimSpace(c.Request().Header.Get("Idempotency-Key")),
		}
		if req.OccurredAt != nil {
			in.OccurredAt = req.OccurredAt.UTC()
		}

		id, deduped, err := svc.Accept(c.Request().Context(), in)
		if err != nil {
			if errors.Is(err, ingest.ErrMissingSource) ||
				errors.Is(err, ingest.ErrMissingType) ||
				errors.Is(err, ingest.ErrBadPayload) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}

			log.Errorf("accept event failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"eventId": id,
			"status":  model.EventAccepted.String(),
			"deduped": deduped,
		})
	}
}

func getEventHandler(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ev, err := deps.Events.Get(c.Request().Context(), c.Param("id"))
		if err != nil {
			c.Logger().Errorf("get event failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if ev == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		// per-status job counts, a cheap dispatch progress summary
		counts := map[string]int{}
		for _, st := range []model.JobStatus{
			model.JobQueued, model.JobProcessing, model.JobSucceeded, model.JobDead,
		} {
			n, err := deps.Jobs.CountByEventAndStatus(c.Request().Context(), ev.ID, st)
			if err != nil {
				c.Logger().Errorf("count jobs failed: %v", err)

				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
			}
			if n > 0 {
				counts[st.String()] = n
			}
		}

		return c.JSON(http.StatusOK, map[string]any{
			"eventId":    ev.ID,
			"source":     ev.Source,
			"type":       ev.Type,
			"subject":    map[string]string{"kind": ev.SubjectKind, "id": ev.SubjectID},
			"status":     ev.Status.String(),
			"occurredAt": ev.OccurredAt,
			"receivedAt": ev.ReceivedAt,
			"jobs":       counts,
		})
	}
}
