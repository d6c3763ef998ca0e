package app

import (
	"context"

	"github.com/datallboy/addonsync/internal/domain"
	"github.com/datallboy/addonsync/internal/infra/config"
	"github.com/datallboy/addonsync/internal/infra/logger"
)

type RunService interface {
	// This allows the API to queue runs without importing the engine
	Add(addons []string) (domain.RunView, error)
	Get(ctx context.Context, id string) (domain.RunView, error)
	List(ctx context.Context, limit int) ([]domain.RunView, error)
	Active() (domain.RunView, bool)
	Cancel(id string) bool
}

type CacheService interface {
	Entries() []domain.CacheEntry
}

// Context hold the core environment and shared resources for addonsync.
// It acts as the "Single Source of Truth" for the application state.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	// High-level interfaces for services to use
	Runs  RunService
	Cache CacheService
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}
