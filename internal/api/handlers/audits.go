package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wpauditd/internal/api/respond"
	"wpauditd/internal/audit"
	"wpauditd/internal/models"
)

// AuditHandler handles the audit lifecycle: start, poll, cancel, cleanup
type AuditHandler struct {
	orchestrator *audit.Orchestrator
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(orchestrator *audit.Orchestrator) *AuditHandler {
	return &AuditHandler{orchestrator: orchestrator}
}

// StartAudit launches a detached audit run and returns its id for polling
// POST /v1/sites/:id/audits
func (h *AuditHandler) StartAudit(c *gin.Context) {
	siteID, ok := pathID(c)
	if !ok {
		return
	}

	auditRow, err := h.orchestrator.StartAudit(siteID)
	if err != nil {
		switch {
		case errors.Is(err, audit.ErrSiteNotFound):
			api.RespondError(c, http.StatusNotFound, "not_found", "Site not found")
		case errors.Is(err, audit.ErrAuditInProgress):
			api.RespondError(c, http.StatusConflict, "audit_in_progress", "An audit is already running for this site")
		default:
			api.RespondError(c, http.StatusInternalServerError, "start_failed", "Failed to start audit")
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"audit_id": auditRow.ID})
}

// auditView is the polling representation of an audit, with the raw
// error rewritten for display
type auditView struct {
	*models.Audit
	ErrorHint string `json:"error_hint,omitempty"`
}

// GetAudit returns current audit state and progress
// GET /v1/audits/:id
func (h *AuditHandler) GetAudit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	auditRow, err := h.orchestrator.Get(id)
	if err != nil {
		if errors.Is(err, audit.ErrAuditNotFound) {
			api.RespondError(c, http.StatusNotFound, "not_found", "Audit not found")
			return
		}
		api.RespondError(c, http.StatusInternalServerError, "get_failed", "Failed to load audit")
		return
	}

	api.RespondSuccess(c, auditView{
		Audit:     auditRow,
		ErrorHint: api.FriendlyMessage(auditRow.ErrorMsg),
	})
}

// CancelAudit force-fails a pending or running audit
// POST /v1/audits/:id/cancel
func (h *AuditHandler) CancelAudit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.orchestrator.Cancel(id); err != nil {
		switch {
		case errors.Is(err, audit.ErrAuditNotFound):
			api.RespondError(c, http.StatusNotFound, "not_found", "Audit not found")
		case errors.Is(err, audit.ErrNotCancellable):
			api.RespondError(c, http.StatusConflict, "not_cancellable", "Only pending/running audits may be cancelled")
		default:
			api.RespondError(c, http.StatusInternalServerError, "cancel_failed", "Failed to cancel audit")
		}
		return
	}

	api.RespondSuccess(c, gin.H{"cancelled": true})
}

// CleanupStale force-fails audits stuck past the staleness threshold
// POST /v1/audits/cleanup
func (h *AuditHandler) CleanupStale(c *gin.Context) {
	cleaned, err := h.orchestrator.CleanupStale()
	if err != nil {
		api.RespondError(c, http.StatusInternalServerError, "cleanup_failed", "Failed to clean up stale audits")
		return
	}

	api.RespondSuccess(c, gin.H{"cleaned": cleaned})
}

// Sweep runs the orchestrator across all sites, synchronously
// POST /v1/audits/sweep
func (h *AuditHandler) Sweep(c *gin.Context) {
	succeeded, failed := h.orchestrator.RunAll(context.Background())
	api.RespondSuccess(c, gin.H{"succeeded": succeeded, "failed": failed})
}
