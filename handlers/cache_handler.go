package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/permission-engine/services/profile"
	"github.com/upb/permission-engine/utils"
	"go.uber.org/zap"
)

// ProfileCacheAdmin exposes cache statistics and invalidation
type ProfileCacheAdmin interface {
	Stats() profile.CacheStats
	Contains(userID string) bool
	Invalidate(userID string) bool
	Clear()
}

// CacheHandler serves profile cache administration
type CacheHandler struct {
	cache  ProfileCacheAdmin
	logger *zap.Logger
}

// NewCacheHandler creates a new CacheHandler
func NewCacheHandler(cache ProfileCacheAdmin, logger *zap.Logger) *CacheHandler {
	return &CacheHandler{cache: cache, logger: logger}
}

// HandleStats handles GET /api/v1/permissions/cache/stats
func (h *CacheHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.cache.Stats())
}

// CacheEntryResponse reports whether a user's profile is cached
type CacheEntryResponse struct {
	UserID string `json:"userId"`
	Cached bool   `json:"cached"`
}

// HandleLookup handles GET /api/v1/permissions/cache/{userId}
func (h *CacheHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !utils.IsValidUserID(userID) {
		_ = utils.WriteBadRequest(w, "invalid userId", nil)
		return
	}

	if !h.cache.Contains(userID) {
		_ = utils.WriteNotFound(w, "profile not cached")
		return
	}
	_ = utils.WriteOK(w, CacheEntryResponse{UserID: userID, Cached: true})
}

// HandleInvalidate handles DELETE /api/v1/permissions/cache/{userId}
func (h *CacheHandler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !utils.IsValidUserID(userID) {
		_ = utils.WriteBadRequest(w, "invalid userId", nil)
		return
	}

	if !h.cache.Invalidate(userID) {
		_ = utils.WriteNotFound(w, "profile not cached")
		return
	}

	h.logger.Info("profile cache entry invalidated", zap.String("user_id", userID))
	utils.WriteNoContent(w)
}

// HandleClear handles DELETE /api/v1/permissions/cache
func (h *CacheHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear()
	h.logger.Info("profile cache cleared")
	utils.WriteNoContent(w)
}
