package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"wpauditd/internal/api/respond"
	"wpauditd/internal/db/repository"
	"wpauditd/internal/models"
	"wpauditd/internal/telemetry"
)

// SiteHandler handles site management and site-scoped reads
type SiteHandler struct {
	siteRepo  *repository.SiteRepository
	issueRepo *repository.IssueRepository
	purger    telemetry.CachePurger
}

// NewSiteHandler creates a new site handler
func NewSiteHandler(siteRepo *repository.SiteRepository, issueRepo *repository.IssueRepository, purger telemetry.CachePurger) *SiteHandler {
	return &SiteHandler{
		siteRepo:  siteRepo,
		issueRepo: issueRepo,
		purger:    purger,
	}
}

// CreateSiteRequest represents a site creation request
type CreateSiteRequest struct {
	Name             string `json:"name" binding:"required"`
	URL              string `json:"url" binding:"required"`
	Hostname         string `json:"hostname" binding:"required"`
	SSHUser          string `json:"ssh_user"`
	SSHPort          int    `json:"ssh_port"`
	WPPath           string `json:"wp_path"`
	CloudflareZoneID string `json:"cloudflare_zone_id"`
	PageBuilder      string `json:"page_builder"`
	IsEcommerce      bool   `json:"is_ecommerce"`
	Environment      string `json:"environment"`
}

// CreateSite handles site registration
// POST /v1/sites
func (h *SiteHandler) CreateSite(c *gin.Context) {
	var req CreateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	site := &models.Site{
		Name:             req.Name,
		URL:              req.URL,
		Hostname:         req.Hostname,
		SSHUser:          req.SSHUser,
		SSHPort:          req.SSHPort,
		WPPath:           req.WPPath,
		CloudflareZoneID: req.CloudflareZoneID,
		PageBuilder:      req.PageBuilder,
		IsEcommerce:      req.IsEcommerce,
		Environment:      req.Environment,
	}

	if err := h.siteRepo.Create(site); err != nil {
		api.RespondError(c, http.StatusInternalServerError, "create_failed", "Failed to create site")
		return
	}

	c.JSON(http.StatusCreated, site)
}

// ListSites lists all sites
// GET /v1/sites
func (h *SiteHandler) ListSites(c *gin.Context) {
	sites, err := h.siteRepo.List()
	if err != nil {
		api.RespondError(c, http.StatusInternalServerError, "list_failed", "Failed to list sites")
		return
	}

	api.RespondSuccess(c, gin.H{"sites": sites})
}

// GetSite returns one site
// GET /v1/sites/:id
func (h *SiteHandler) GetSite(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	site, err := h.siteRepo.Get(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			api.RespondError(c, http.StatusNotFound, "not_found", "Site not found")
			return
		}
		api.RespondError(c, http.StatusInternalServerError, "get_failed", "Failed to load site")
		return
	}

	api.RespondSuccess(c, site)
}

// UpdateSite replaces a site's mutable fields
// PUT /v1/sites/:id
func (h *SiteHandler) UpdateSite(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req CreateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	site := &models.Site{
		ID:               id,
		Name:             req.Name,
		URL:              req.URL,
		Hostname:         req.Hostname,
		SSHUser:          req.SSHUser,
		SSHPort:          req.SSHPort,
		WPPath:           req.WPPath,
		CloudflareZoneID: req.CloudflareZoneID,
		PageBuilder:      req.PageBuilder,
		IsEcommerce:      req.IsEcommerce,
		Environment:      req.Environment,
	}

	if err := h.siteRepo.Update(site); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			api.RespondError(c, http.StatusNotFound, "not_found", "Site not found")
			return
		}
		api.RespondError(c, http.StatusInternalServerError, "update_failed", "Failed to update site")
		return
	}

	updated, err := h.siteRepo.Get(id)
	if err != nil {
		api.RespondError(c, http.StatusInternalServerError, "get_failed", "Failed to load site")
		return
	}

	api.RespondSuccess(c, updated)
}

// DeleteSite removes a site and its audit history
// DELETE /v1/sites/:id
func (h *SiteHandler) DeleteSite(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.siteRepo.Delete(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			api.RespondError(c, http.StatusNotFound, "not_found", "Site not found")
			return
		}
		api.RespondError(c, http.StatusInternalServerError, "delete_failed", "Failed to delete site")
		return
	}

	api.RespondSuccess(c, gin.H{"deleted": true})
}

// ListIssues lists the current open issues for a site
// GET /v1/sites/:id/issues
func (h *SiteHandler) ListIssues(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	issues, err := h.issueRepo.ListOpenBySite(id)
	if err != nil {
		api.RespondError(c, http.StatusInternalServerError, "list_failed", "Failed to list issues")
		return
	}

	api.RespondSuccess(c, gin.H{"issues": issues})
}

// PurgeCacheRequest optionally narrows a purge to specific URLs
type PurgeCacheRequest struct {
	URLs []string `json:"urls"`
}

// PurgeCache purges the site's edge cache, fully or per URL
// POST /v1/sites/:id/cache/purge
func (h *SiteHandler) PurgeCache(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	site, err := h.siteRepo.Get(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			api.RespondError(c, http.StatusNotFound, "not_found", "Site not found")
			return
		}
		api.RespondError(c, http.StatusInternalServerError, "get_failed", "Failed to load site")
		return
	}

	if site.CloudflareZoneID == "" {
		api.RespondError(c, http.StatusBadRequest, "no_zone", "Site has no Cloudflare zone configured")
		return
	}

	var req PurgeCacheRequest
	_ = c.ShouldBindJSON(&req)

	ctx := context.Background()
	if len(req.URLs) > 0 {
		err = h.purger.PurgeCacheURLs(ctx, site.CloudflareZoneID, req.URLs)
	} else {
		err = h.purger.PurgeCache(ctx, site.CloudflareZoneID)
	}
	if err != nil {
		api.RespondError(c, http.StatusBadGateway, "purge_failed", api.FriendlyMessage(err.Error()))
		return
	}

	api.RespondSuccess(c, gin.H{"purged": true})
}

// pathID parses the :id path parameter, responding with 400 on garbage
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		api.RespondError(c, http.StatusBadRequest, "invalid_id", "Invalid id")
		return 0, false
	}
	return id, true
}
