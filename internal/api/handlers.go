package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/inboxtriage/internal/learning"
	"github.com/inboxtriage/internal/pipeline"
	"github.com/inboxtriage/internal/store"
)

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) processMessage(c echo.Context) error {
	var in pipeline.NewMessage
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid message payload")
	}
	pm, err := s.pipeline.Ingest(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, pm)
}

func (s *Server) processBatch(c echo.Context) error {
	var in struct {
		Messages []pipeline.NewMessage `json:"messages"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch payload")
	}
	if len(in.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "batch is empty")
	}

	results := s.pipeline.IngestBatch(c.Request().Context(), in.Messages)
	type entry struct {
		Index   int                        `json:"index"`
		Message *pipeline.ProcessedMessage `json:"message,omitempty"`
		Error   string                     `json:"error,omitempty"`
	}
	out := struct {
		Processed int     `json:"processed"`
		Failed    int     `json:"failed"`
		Results   []entry `json:"results"`
	}{Results: make([]entry, 0, len(results))}
	for _, r := range results {
		e := entry{Index: r.Index, Message: r.Message}
		if r.Err != nil {
			e.Error = r.Err.Error()
			out.Failed++
		} else {
			out.Processed++
		}
		out.Results = append(out.Results, e)
	}
	return c.JSON(http.StatusAccepted, out)
}

func (s *Server) listMessages(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be 1..500")
		}
		limit = n
	}
	msgs, err := s.store.ListRecentMessages(c.Request().Context(), userID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "listing messages failed")
	}
	if msgs == nil {
		msgs = []*store.Message{}
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) similarMessages(c echo.Context) error {
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be 1..100")
		}
		limit = n
	}
	similar, err := s.pipeline.FindSimilar(c.Request().Context(), c.Param("id"), limit)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "message has no embedding")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "similarity lookup failed")
	}
	return c.JSON(http.StatusOK, map[string]any{"similar": similar})
}

func (s *Server) trackInteraction(c echo.Context) error {
	var ev store.InteractionEvent
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid interaction payload")
	}
	if err := s.tracker.Track(c.Request().Context(), ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "tracked"})
}

func (s *Server) queueStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sched.Status())
}

func (s *Server) runLearning(c echo.Context) error {
	userID := c.QueryParam("user_id")
	ctx := c.Request().Context()

	if userID != "" {
		outcome, err := s.learner.Run(ctx, userID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]learning.Outcome{userID: outcome})
	}

	outcomes, err := s.learner.RunAll(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, outcomes)
}
