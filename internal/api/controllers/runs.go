package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/datallboy/addonsync/internal/app"
	"github.com/datallboy/addonsync/internal/domain"
	"github.com/datallboy/addonsync/internal/engine"
	"github.com/labstack/echo/v5"
)

type RunsController struct {
	App *app.Context
}

// Create queues a run for the posted addons, or the configured ones
func (ctrl *RunsController) Create(c *echo.Context) error {
	var req CreateRunRequest
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
	}

	run, err := ctrl.App.Runs.Add(req.Addons)
	switch {
	case errors.Is(err, engine.ErrNoAddons), errors.Is(err, domain.ErrInvalidAddon):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case err != nil:
		ctrl.App.Logger.Error("Failed to queue run: %v", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to queue run"})
	}

	return c.JSON(http.StatusAccepted, run)
}

// List returns queued runs followed by history
func (ctrl *RunsController) List(c *echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
		}
		limit = n
	}

	runs, err := ctrl.App.Runs.List(c.Request().Context(), limit)
	if err != nil {
		ctrl.App.Logger.Error("Failed to list runs: %v", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list runs"})
	}

	resp := RunListResponse{Runs: runs}
	if active, ok := ctrl.App.Runs.Active(); ok {
		resp.Active = &active
	}
	return c.JSON(http.StatusOK, resp)
}

func (ctrl *RunsController) Get(c *echo.Context) error {
	run, err := ctrl.App.Runs.Get(c.Request().Context(), c.Param("id"))
	switch {
	case errors.Is(err, engine.ErrRunNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "run not found"})
	case err != nil:
		ctrl.App.Logger.Error("Failed to load run %s: %v", c.Param("id"), err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load run"})
	}
	return c.JSON(http.StatusOK, run)
}

// Cancel stops a running run or drops a pending one
func (ctrl *RunsController) Cancel(c *echo.Context) error {
	if !ctrl.App.Runs.Cancel(c.Param("id")) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "no pending or running run with that id"})
	}
	return c.NoContent(http.StatusAccepted)
}
