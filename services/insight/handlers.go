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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/17user21id/financial-ai-analytics/services/insight/execute"
	"github.com/17user21id/financial-ai-analytics/services/insight/genquery"
	"github.com/17user21id/financial-ai-analytics/services/insight/schema"
	"github.com/17user21id/financial-ai-analytics/services/insight/session"
)

// HandleAsk runs one question through the pipeline.
func HandleAsk(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()

		var req AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				RequestID: requestID,
				Code:      "INVALID_REQUEST",
				Error:     err.Error(),
			})
			return
		}

		resp, err := svc.Ask(c.Request.Context(), requestID, req)
		if err != nil {
			writeError(c, requestID, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleListSessions lists all sessions.
func HandleListSessions(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		views, err := svc.Sessions(c.Request.Context())
		if err != nil {
			writeError(c, "", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": views})
	}
}

// HandleGetSession returns one session.
func HandleGetSession(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := svc.Session(c.Request.Context(), c.Param("sessionId"))
		if err != nil {
			writeError(c, "", err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// HandleHistory returns one session's turns in order.
func HandleHistory(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		turns, err := svc.History(c.Request.Context(), c.Param("sessionId"))
		if err != nil {
			writeError(c, "", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"turns": turns})
	}
}

// HandleArchiveSession archives a session.
func HandleArchiveSession(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		if err := svc.Archive(c.Request.Context(), id); err != nil {
			writeError(c, "", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "archived", "session_id": id})
	}
}

// writeError maps pipeline sentinels onto their HTTP status and
// stable reason code. Unknown errors surface as 500 without internal
// detail.
func writeError(c *gin.Context, requestID string, err error) {
	var unres *UnresolvedReferenceError
	if errors.As(err, &unres) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			RequestID:   requestID,
			Code:        "UNRESOLVED_REFERENCE",
			Error:       unres.Error(),
			Unresolved:  unres.Categories,
			Resolutions: unres.Resolutions,
		})
		return
	}

	var rej *RejectionError
	if errors.As(err, &rej) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			RequestID: requestID,
			Code:      rej.Verdict.Code(),
			Stage:     string(rej.Verdict.Stage()),
			Error:     rej.Verdict.Reason(),
		})
		return
	}

	status := http.StatusInternalServerError
	code := "INTERNAL"
	msg := "internal error"

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		status, code, msg = http.StatusNotFound, "SESSION_NOT_FOUND", err.Error()
	case errors.Is(err, session.ErrSessionArchived):
		status, code, msg = http.StatusConflict, "SESSION_ARCHIVED", err.Error()
	case errors.Is(err, genquery.ErrUpstreamTimeout), errors.Is(err, execute.ErrUpstreamTimeout):
		status, code, msg = http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", err.Error()
	case errors.Is(err, genquery.ErrModelRefusal):
		status, code, msg = http.StatusUnprocessableEntity, "MODEL_REFUSAL", err.Error()
	case errors.Is(err, genquery.ErrNoQueryInResponse):
		status, code, msg = http.StatusBadGateway, "MALFORMED_MODEL_RESPONSE", err.Error()
	case errors.Is(err, schema.ErrSchemaUnavailable):
		status, code, msg = http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", err.Error()
	case errors.Is(err, execute.ErrQueryFailed):
		status, code, msg = http.StatusBadGateway, "QUERY_FAILED", err.Error()
	default:
		slog.Error("unhandled pipeline error", "request_id", requestID, "error", err)
	}

	c.JSON(status, ErrorResponse{RequestID: requestID, Code: code, Error: msg})
}
