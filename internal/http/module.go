// Package http defines the contract between the router and the domain
// modules that mount routes on it.
package http

import (
	"photobridge_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module is a domain module that registers its own HTTP routes.
type Module interface {
	// Name identifies the module in logs.
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext carries the route groups and shared middleware modules
// mount their routes on.
type RouterContext struct {
	// V1 is the public /api/v1 group.
	V1 *gin.RouterGroup
	// Protected requires an authenticated user.
	Protected *gin.RouterGroup
	// Admin requires the admin role.
	Admin *gin.RouterGroup
	// AuthRateLimiter is the stricter limiter for credential endpoints.
	AuthRateLimiter *httpkit.AuthRateLimiter
}
