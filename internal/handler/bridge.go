package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradebridge/internal/bridge"
	"tradebridge/internal/protocol"
	"tradebridge/internal/repository"
)

// BridgeHandler is the REST read surface for dashboards that prefer HTTP
// polling over the GUI socket. It serves the same derived views the
// observer snapshot carries, plus the persisted copy-event history.
type BridgeHandler struct {
	Core   *bridge.Core
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *BridgeHandler) Register(r *gin.Engine) {
	r.GET("/api/accounts", h.listAccounts)
	r.GET("/api/relationships", h.listRelationships)
	r.POST("/api/relationships", h.createRelationship)
	r.POST("/api/relationships/enabled", h.setRelationshipEnabled)
	r.DELETE("/api/relationships", h.deleteRelationship)
	r.GET("/api/copy-events", h.listCopyEvents)
}

func (h *BridgeHandler) listAccounts(c *gin.Context) {
	snapshot := h.Core.AccountsSnapshot()
	Ok(c, snapshot.Accounts, map[string]any{"total": len(snapshot.Accounts)})
}

func (h *BridgeHandler) listRelationships(c *gin.Context) {
	snapshot := h.Core.RelationshipsSnapshot()
	Ok(c, snapshot.Relationships, map[string]any{"total": len(snapshot.Relationships)})
}

func (h *BridgeHandler) createRelationship(c *gin.Context) {
	var req protocol.CreateRelationship
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if strings.TrimSpace(req.ProviderID) == "" || strings.TrimSpace(req.CopyerID) == "" {
		Error(c, http.StatusBadRequest, "provider_id and copyer_id are required", nil)
		return
	}
	if req.VolumeMultiplier != nil && *req.VolumeMultiplier <= 0 {
		Error(c, http.StatusBadRequest, "volume_multiplier must be positive", nil)
		return
	}
	if req.MaxLots != nil && *req.MaxLots <= 0 {
		Error(c, http.StatusBadRequest, "max_lots must be positive", nil)
		return
	}
	view, err := h.Core.CreateRelationship(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, bridge.ErrSelfRelationship) {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, view, nil)
}

type relationshipToggleRequest struct {
	ProviderID string `json:"provider_id"`
	CopyerID   string `json:"copyer_id"`
	Enabled    bool   `json:"enabled"`
}

func (h *BridgeHandler) setRelationshipEnabled(c *gin.Context) {
	var req relationshipToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	err := h.Core.SetRelationshipEnabled(c.Request.Context(), req.ProviderID, req.CopyerID, req.Enabled)
	if err != nil {
		if errors.Is(err, bridge.ErrUnknownRelationship) {
			Error(c, http.StatusNotFound, err.Error(), nil)
			return
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"provider_id": req.ProviderID, "copyer_id": req.CopyerID, "enabled": req.Enabled}, nil)
}

func (h *BridgeHandler) deleteRelationship(c *gin.Context) {
	providerID := strings.TrimSpace(c.Query("provider_id"))
	copyerID := strings.TrimSpace(c.Query("copyer_id"))
	if providerID == "" || copyerID == "" {
		Error(c, http.StatusBadRequest, "provider_id and copyer_id are required", nil)
		return
	}
	if err := h.Core.DeleteRelationship(c.Request.Context(), providerID, copyerID); err != nil {
		if errors.Is(err, bridge.ErrUnknownRelationship) {
			Error(c, http.StatusNotFound, err.Error(), nil)
			return
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"deleted": true}, nil)
}

// listCopyEvents prefers the persisted audit trail and falls back to the
// in-memory ring when the relay runs without a database.
func (h *BridgeHandler) listCopyEvents(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 100)
	if h.Repo == nil {
		snapshot := h.Core.CopyEventsSnapshot(limit)
		Ok(c, snapshot.Events, map[string]any{"total": len(snapshot.Events), "source": "memory"})
		return
	}

	params := repository.ListCopyEventsParams{Limit: limit, Offset: parseIntQuery(c, "offset", 0)}
	if v := strings.TrimSpace(c.Query("provider_id")); v != "" {
		params.ProviderID = &v
	}
	if v := strings.TrimSpace(c.Query("copyer_id")); v != "" {
		params.CopyerID = &v
	}
	if v := strings.TrimSpace(c.Query("since")); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			Error(c, http.StatusBadRequest, "since must be RFC3339", nil)
			return
		}
		params.Since = &since
	}
	items, err := h.Repo.ListCopyEvents(c.Request.Context(), params)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("list copy events failed", zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, "query failed", nil)
		return
	}
	Ok(c, items, map[string]any{"total": len(items), "source": "db"})
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
