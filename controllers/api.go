package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dcgm-keeper/services"
)

type APIController struct {
	server *services.Server
}

/**
 * Create new API controller instance
 * @param {*services.Server} server - Daemon state shared with the watch loop
 * @returns {*APIController} New API controller instance
 * @example
 * server := services.GetServer(version)
 * controller := controllers.NewAPIController(server)
 */
func NewAPIController(server *services.Server) *APIController {
	return &APIController{
		server: server,
	}
}

/**
 * Register all API routes to Gin engine
 * @param {*gin.Engine} r - Gin router instance
 * @description
 * - Registers the readiness probe, status and on-demand check endpoints
 * - Exposes the keeper's own Prometheus metrics under /metrics
 */
func (a *APIController) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", a.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/dcgm-keeper/api/v1/status", a.Status)
	r.POST("/dcgm-keeper/api/v1/check", a.Check)
}

// @Summary Aggregated provisioning status
// @Description Returns unit state, scrape-job presence, last run report, cached health classification and any pending ephemeral dependencies
// @Tags System
// @Produce json
// @Success 200 {object} models.KeeperStatus
// @Router /dcgm-keeper/api/v1/status [get]
func (a *APIController) Status(c *gin.Context) {
	c.JSON(200, a.server.Status(c.Request.Context()))
}

// @Summary Re-verify exporter health now
// @Description Scrapes the exporter endpoint immediately instead of waiting for the next periodic check and returns the fresh classification
// @Tags System
// @Produce json
// @Success 200 {object} models.HealthCheckResult
// @Router /dcgm-keeper/api/v1/check [post]
func (a *APIController) Check(c *gin.Context) {
	c.JSON(200, a.server.CheckNow(c.Request.Context()))
}

// @Summary Readiness probe
// @Description Reports daemon version, start time and uptime
// @Tags System
// @Produce json
// @Success 200 {object} models.ServerHealth
// @Router /healthz [get]
func (a *APIController) Healthz(c *gin.Context) {
	c.JSON(200, a.server.Health())
}
