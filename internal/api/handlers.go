package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iPromKnight/riven/internal/store"
)

// listItems returns a page of root items, optionally filtered by state
// and media type.
func (s *Server) listItems(c echo.Context) error {
	ctx := c.Request().Context()

	page := 1
	pageSize := 50
	if p := c.QueryParam("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if ps := c.QueryParam("page_size"); ps != "" {
		if parsed, err := strconv.Atoi(ps); err == nil && parsed > 0 && parsed <= 500 {
			pageSize = parsed
		}
	}

	items, total, err := s.store.List(ctx, page, pageSize, c.QueryParam("state"), c.QueryParam("type"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (s *Server) getItem(c echo.Context) error {
	ctx := c.Request().Context()

	item, err := s.store.GetByIMDB(ctx, c.Param("imdb"), nil, nil)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "item not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, item)
}

// deleteItem removes an item and its library symlinks.
func (s *Server) deleteItem(c echo.Context) error {
	ctx := c.Request().Context()
	imdbID := c.Param("imdb")

	item, err := s.store.GetByIMDB(ctx, imdbID, nil, nil)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "item not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	if s.symlinker != nil {
		s.symlinker.RemoveSymlinks(item)
	}

	if _, err := s.store.DeleteByIMDB(ctx, imdbID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.NoContent(http.StatusNoContent)
}

// retryItem resets an item's download state and re-enters it into the
// workflow engine.
func (s *Server) retryItem(c echo.Context) error {
	ctx := c.Request().Context()

	item, err := s.store.ResetByIMDB(ctx, c.Param("imdb"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "item not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	handle := s.engine.Start(item, "RetryLibrary")

	return c.JSON(http.StatusAccepted, map[string]string{
		"workflow": handle.ID,
		"run":      handle.RunID,
	})
}

func (s *Server) getStats(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, stats)
}

func (s *Server) listTasks(c echo.Context) error {
	if s.scheduler == nil {
		return c.JSON(http.StatusOK, []interface{}{})
	}
	return c.JSON(http.StatusOK, s.scheduler.ListTasks())
}

// overseerrWebhookPayload is the notification body Overseerr posts.
type overseerrWebhookPayload struct {
	NotificationType string `json:"notification_type"`
	Media            struct {
		MediaType string `json:"media_type"`
		TmdbID    int    `json:"tmdbId"`
		ImdbID    string `json:"imdbId"`
	} `json:"media"`
	Request struct {
		RequestID int `json:"request_id"`
	} `json:"request"`
}

// overseerrWebhook accepts approval notifications and starts a
// workflow immediately instead of waiting for the next poll.
func (s *Server) overseerrWebhook(c echo.Context) error {
	if s.overseerr == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "overseerr is not configured"})
	}

	var payload overseerrWebhookPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	// Only approval and auto-approval notifications carry work.
	switch payload.NotificationType {
	case "MEDIA_APPROVED", "MEDIA_AUTO_APPROVED":
	default:
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	item, err := s.overseerr.ItemFromWebhook(
		c.Request().Context(),
		payload.Media.MediaType,
		strconv.Itoa(payload.Media.TmdbID),
		payload.Media.ImdbID,
		payload.Request.RequestID,
	)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	}

	handle := s.engine.Start(item, s.overseerr.Name())
	s.logger.Info().Str("workflow", handle.ID).Msg("webhook request submitted")

	return c.JSON(http.StatusAccepted, map[string]string{
		"workflow": handle.ID,
		"run":      handle.RunID,
	})
}
