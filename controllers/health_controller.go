package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthControllerI interface {
	IsRunning(ctx *gin.Context)
}

type healthController struct {
	started time.Time
}

var HealthController HealthControllerI = &healthController{started: time.Now()}

func (h *healthController) IsRunning(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"message": "Server is running",
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}
