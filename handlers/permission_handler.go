package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/upb/permission-engine/internal/observability"
	"github.com/upb/permission-engine/middleware"
	"github.com/upb/permission-engine/services"
	"github.com/upb/permission-engine/services/normalizer"
	"github.com/upb/permission-engine/services/permission"
	"github.com/upb/permission-engine/utils"
	"go.uber.org/zap"
)

// maxRequestBody bounds a permission check payload
const maxRequestBody = 64 << 10

// PermissionChecker evaluates raw permission requests
type PermissionChecker interface {
	Check(ctx context.Context, raw []byte, opts ...normalizer.Option) (*permission.Evaluation, error)
}

// PermissionHandler serves permission checks
type PermissionHandler struct {
	checker    PermissionChecker
	trustProxy bool
	logger     *zap.Logger
}

// NewPermissionHandler creates a new PermissionHandler
func NewPermissionHandler(checker PermissionChecker, trustProxy bool, logger *zap.Logger) *PermissionHandler {
	return &PermissionHandler{
		checker:    checker,
		trustProxy: trustProxy,
		logger:     logger,
	}
}

// HandleCheck handles POST /api/v1/permissions/check.
// Allowed decisions return 200 and denied ones 403, both with the decision body.
func (h *PermissionHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequest(ctx, h.logger)
	if claims := middleware.GetClaimsFromContext(ctx); claims != nil {
		logger = logger.With(zap.String("caller", claims.Subject))
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleServiceError(w, services.NewValidationError("request body too large", nil), logger)
			return
		}
		HandleServiceError(w, services.WrapMalformed("failed to read request body", err), logger)
		return
	}

	var opts []normalizer.Option
	if ip := utils.ClientIP(r, h.trustProxy); ip != "" {
		opts = append(opts, normalizer.WithFallbackClientIP(ip))
	}

	eval, err := h.checker.Check(ctx, raw, opts...)
	if err != nil {
		logger.Debug("permission request rejected", zap.Error(err))
		HandleServiceError(w, err, logger)
		return
	}

	status := http.StatusOK
	if !eval.Response.Allowed {
		status = http.StatusForbidden
	}

	logger.Info("permission checked",
		zap.String("user_id", eval.Request.UserID),
		zap.String("action", string(eval.Request.Action)),
		zap.Bool("allowed", eval.Response.Allowed))

	if err := utils.WriteJSON(w, status, eval.Response); err != nil {
		logger.Error("failed to write permission response", zap.Error(err))
	}
}
