package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/guidekeeper/internal/orchestrator"
	"github.com/fyrsmithlabs/guidekeeper/internal/services"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
	"github.com/fyrsmithlabs/guidekeeper/internal/vcs"
)

const maxRunsLimit = 200

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	ctx := c.Request().Context()

	inv, err := services.BuildInventory(ctx, s.services.Reader(), s.services.Config().Guides.Filenames, s.services.Store())
	if err != nil {
		s.logger.Error(ctx, "inventory failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read guides")
	}

	resp := StatusResponse{
		Repository: s.services.Repo(),
		Coverage:   inv.Coverage,
		Telemetry:  s.services.Telemetry().Health(),
	}
	if id, ok := s.services.Runner().Active(); ok {
		resp.ActiveRun = id
	}
	runs, err := s.services.Store().ListRuns(ctx, 1)
	if err != nil {
		s.logger.Warn(ctx, "list runs failed", zap.Error(err))
	} else if len(runs) > 0 {
		resp.LastRun = &runs[0]
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTree(c echo.Context) error {
	ctx := c.Request().Context()
	inv, err := services.BuildInventory(ctx, s.services.Reader(), s.services.Config().Guides.Filenames, s.services.Store())
	if err != nil {
		s.logger.Error(ctx, "inventory failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read guides")
	}
	return c.JSON(http.StatusOK, inv)
}

func (s *Server) handlePlan(c echo.Context) error {
	ctx := c.Request().Context()
	scope, err := vcs.ParseScope(c.QueryParam("scope"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	plan, err := s.services.Orchestrator().Planner().Plan(ctx, scope)
	if err != nil {
		s.logger.Error(ctx, "plan failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	layers := plan.Layers
	if layers == nil {
		layers = [][]string{}
	}
	return c.JSON(http.StatusOK, PlanResponse{
		Scope:          scope,
		ChangedFiles:   nonNil(plan.ChangeSet.ChangedFiles),
		AffectedGuides: nonNil(plan.ChangeSet.AffectedGuides),
		Layers:         layers,
	})
}

func (s *Server) handleListRuns(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.services.Store().ListRuns(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error(c.Request().Context(), "list runs failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list runs")
	}
	if runs == nil {
		runs = []store.Run{}
	}
	return c.JSON(http.StatusOK, RunsResponse{Runs: runs})
}

func (s *Server) handleStartRun(c echo.Context) error {
	ctx := c.Request().Context()

	var req RunRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			s.logger.Warn(ctx, "invalid run request", zap.Error(err))
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	opts, err := s.runOptions(req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	opts.Meta = map[string]string{"trigger": "http"}

	id, err := s.services.Runner().Start(ctx, opts)
	switch {
	case errors.Is(err, services.ErrRunInProgress):
		active, _ := s.services.Runner().Active()
		return echo.NewHTTPError(http.StatusConflict, "run "+active+" is in progress")
	case err != nil:
		s.logger.Error(ctx, "start run failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start run")
	}

	return c.JSON(http.StatusAccepted, RunStartedResponse{
		RunID:  id,
		Events: "/api/v1/runs/" + id + "/events",
	})
}

func (s *Server) runOptions(req RunRequest) (orchestrator.RunOptions, error) {
	scope, err := vcs.ParseScope(req.Scope)
	if err != nil {
		return orchestrator.RunOptions{}, err
	}
	opts := orchestrator.RunOptions{Scope: scope, Model: req.Model}
	if opts.Model == "" {
		opts.Model = s.services.Config().Agent.Model
	}
	if req.Policy != "" {
		p, err := orchestrator.ParsePolicy(req.Policy)
		if err != nil {
			return orchestrator.RunOptions{}, err
		}
		opts.Policy = p
	}
	return opts, nil
}

func (s *Server) handleGetRun(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	run, err := s.services.Store().GetRun(ctx, id)
	if errors.Is(err, store.ErrRunNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		s.logger.Error(ctx, "get run failed", zap.String("run_id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load run")
	}

	outcomes, err := s.services.Store().ListOutcomes(ctx, id)
	if err != nil {
		s.logger.Error(ctx, "list outcomes failed", zap.String("run_id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load outcomes")
	}
	if outcomes == nil {
		outcomes = []store.GuideOutcome{}
	}
	return c.JSON(http.StatusOK, RunResponse{Run: run, Outcomes: outcomes})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
