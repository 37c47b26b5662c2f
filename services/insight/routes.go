// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package insight

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes attaches the insight API to the router.
func RegisterRoutes(router *gin.Engine, svc *Service) {
	registerValidators()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/insight/ask", HandleAsk(svc))
		v1.GET("/sessions", HandleListSessions(svc))
		v1.GET("/sessions/:sessionId", HandleGetSession(svc))
		v1.GET("/sessions/:sessionId/history", HandleHistory(svc))
		v1.POST("/sessions/:sessionId/archive", HandleArchiveSession(svc))
	}
}
