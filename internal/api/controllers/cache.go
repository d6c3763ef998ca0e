package controllers

import (
	"net/http"

	"github.com/datallboy/addonsync/internal/app"
	"github.com/labstack/echo/v5"
)

type CacheController struct {
	App *app.Context
}

// List shows what SmartUpdate currently remembers
func (ctrl *CacheController) List(c *echo.Context) error {
	entries := ctrl.App.Cache.Entries()

	resp := CacheResponse{Entries: make([]CacheEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, CacheEntryResponse{
			Addon:       e.Addon,
			FileName:    e.FileName,
			DownloadURL: e.DownloadURL,
			ChangedAt:   e.ChangedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}
