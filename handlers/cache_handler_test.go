package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/permission-engine/services/profile"
	"go.uber.org/zap"
)

// MockCacheAdmin is a mock implementation of ProfileCacheAdmin
type MockCacheAdmin struct {
	mock.Mock
}

func (m *MockCacheAdmin) Stats() profile.CacheStats {
	return m.Called().Get(0).(profile.CacheStats)
}

func (m *MockCacheAdmin) Contains(userID string) bool {
	return m.Called(userID).Bool(0)
}

func (m *MockCacheAdmin) Invalidate(userID string) bool {
	return m.Called(userID).Bool(0)
}

func (m *MockCacheAdmin) Clear() {
	m.Called()
}

func serveCacheRoute(h *CacheHandler, method, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/cache/stats", h.HandleStats)
	r.Delete("/cache", h.HandleClear)
	r.Get("/cache/{userId}", h.HandleLookup)
	r.Delete("/cache/{userId}", h.HandleInvalidate)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestCacheHandler_HandleLookup(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		userID     string
		cached     bool
		wantStatus int
	}{
		{"cached", "/cache/user001", "user001", true, http.StatusOK},
		{"not cached", "/cache/user002", "user002", false, http.StatusNotFound},
		{"invalid user id", "/cache/user%3B001", "", false, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := new(MockCacheAdmin)
			if tt.userID != "" {
				cache.On("Contains", tt.userID).Return(tt.cached)
			}

			w := serveCacheRoute(NewCacheHandler(cache, zap.NewNop()), http.MethodGet, tt.target)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				var body struct {
					Data CacheEntryResponse `json:"data"`
				}
				require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
				assert.Equal(t, CacheEntryResponse{UserID: tt.userID, Cached: true}, body.Data)
			}
			cache.AssertExpectations(t)
		})
	}
}

func TestCacheHandler_HandleStats(t *testing.T) {
	cache := new(MockCacheAdmin)
	cache.On("Stats").Return(profile.CacheStats{Size: 3, MaxSize: 10, Hits: 6, Misses: 2, HitRate: 0.75})

	w := serveCacheRoute(NewCacheHandler(cache, zap.NewNop()), http.MethodGet, "/cache/stats")

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data profile.CacheStats `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 3, body.Data.Size)
	assert.Equal(t, 0.75, body.Data.HitRate)
}

func TestCacheHandler_HandleInvalidate(t *testing.T) {
	tests := []struct {
		name   string
		target string
		setup  func(*MockCacheAdmin)
		want   int
	}{
		{
			name:   "cached entry removed",
			target: "/cache/user001",
			setup:  func(m *MockCacheAdmin) { m.On("Invalidate", "user001").Return(true) },
			want:   http.StatusNoContent,
		},
		{
			name:   "entry not cached",
			target: "/cache/user002",
			setup:  func(m *MockCacheAdmin) { m.On("Invalidate", "user002").Return(false) },
			want:   http.StatusNotFound,
		},
		{
			name:   "invalid user id",
			target: "/cache/user%3B001",
			setup:  func(*MockCacheAdmin) {},
			want:   http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := new(MockCacheAdmin)
			tt.setup(cache)

			w := serveCacheRoute(NewCacheHandler(cache, zap.NewNop()), http.MethodDelete, tt.target)

			assert.Equal(t, tt.want, w.Code)
			cache.AssertExpectations(t)
		})
	}
}

func TestCacheHandler_HandleClear(t *testing.T) {
	cache := new(MockCacheAdmin)
	cache.On("Clear").Return()

	w := serveCacheRoute(NewCacheHandler(cache, zap.NewNop()), http.MethodDelete, "/cache")

	assert.Equal(t, http.StatusNoContent, w.Code)
	cache.AssertExpectations(t)
}
