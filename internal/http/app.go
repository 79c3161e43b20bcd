package http

import (
	"context"

	"photobridge_backend/platform/config"
	"photobridge_backend/platform/logger"
)

// RouterConfig combines the config interfaces the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is the composition root's hand-off to the router.
type App struct {
	Config  RouterConfig
	Logger  *logger.Logger
	Health  HealthChecker
	Modules []Module
}
