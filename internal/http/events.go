package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/guidekeeper/internal/orchestrator"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
)

// handleRunEvents streams a run's events as server-sent events. Past events
// are replayed first. The stream ends after run-end.
//
// Runs whose stream is no longer kept get a single run-end event built from
// the stored record.
func (s *Server) handleRunEvents(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	b, ok := s.services.Runner().Events(id)
	if !ok {
		run, err := s.services.Store().GetRun(ctx, id)
		if errors.Is(err, store.ErrRunNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		if err != nil {
			s.logger.Error(ctx, "get run failed", zap.String("run_id", id), zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to load run")
		}
		s.startStream(c)
		return writeEvent(c.Response(), storedEnd(run))
	}

	past, events, cancel := b.Subscribe()
	defer cancel()

	s.metrics.streamOpened(c)
	defer s.metrics.streamClosed(c)
	s.startStream(c)

	for _, e := range past {
		if err := writeEvent(c.Response(), e); err != nil {
			return nil
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeEvent(c.Response(), e); err != nil {
				s.logger.Debug(ctx, "event stream closed by client", zap.Error(err))
				return nil
			}
		}
	}
}

func (s *Server) startStream(c echo.Context) {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()
}

func writeEvent(w *echo.Response, e orchestrator.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := writeSSE(w, string(e.Type), data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func writeSSE(w io.Writer, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func storedEnd(run *store.Run) orchestrator.Event {
	e := orchestrator.Event{
		Type:      orchestrator.EventRunEnd,
		RunID:     run.ID,
		Time:      run.StartedAt,
		RunStatus: run.Status,
		Counts: &store.Counts{
			TotalLayers:     run.TotalLayers,
			LayersCompleted: run.LayersCompleted,
			Updated:         run.GuidesUpdated,
			Unchanged:       run.GuidesUnchanged,
			Failed:          run.GuidesFailed,
		},
	}
	if run.FinishedAt != nil {
		e.Time = *run.FinishedAt
	}
	return e
}
