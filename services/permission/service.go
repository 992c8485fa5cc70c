// Package permission runs one access evaluation end to end: normalize, look up
// the profile, evaluate, build the response and hand the result to auditing.
package permission

import (
	"context"
	"time"

	"github.com/upb/permission-engine/models"
	"github.com/upb/permission-engine/services"
	"github.com/upb/permission-engine/services/audit"
	"github.com/upb/permission-engine/services/evaluator"
	"github.com/upb/permission-engine/services/normalizer"
	"go.uber.org/zap"
)

// ProfileSource resolves active profiles. A nil profile with a nil error means
// the user has no active profile.
type ProfileSource interface {
	GetProfile(ctx context.Context, userID string) (*models.UserPermissionProfile, error)
}

// Evaluation is the outcome of one request
type Evaluation struct {
	Request  models.AccessRequest
	Decision models.Decision
	Response models.PermissionResponse
	Profile  *models.UserPermissionProfile
}

// Service evaluates access requests
type Service struct {
	normalizer *normalizer.Normalizer
	profiles   ProfileSource
	evaluator  *evaluator.Evaluator
	audit      audit.Submitter
	masker     *audit.Masker
	now        func() time.Time
	logger     *zap.Logger
}

// NewService creates a permission service. now is also used by the normalizer
// for requests without a timestamp, and timestamps without an offset are read
// in the policy timezone.
func NewService(
	profiles ProfileSource,
	eval *evaluator.Evaluator,
	submitter audit.Submitter,
	now func() time.Time,
	logger *zap.Logger,
) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		normalizer: normalizer.New(now, eval.Location()),
		profiles:   profiles,
		evaluator:  eval,
		audit:      submitter,
		masker:     audit.NewMasker(),
		now:        now,
		logger:     logger,
	}
}

// Check normalizes raw and evaluates it. Validation and malformed input errors
// are returned before any evaluation and are never audited.
func (s *Service) Check(ctx context.Context, raw []byte, opts ...normalizer.Option) (*Evaluation, error) {
	req, err := s.normalizer.Normalize(raw, opts...)
	if err != nil {
		return nil, err
	}
	return s.Evaluate(ctx, req), nil
}

// Evaluate decides req and submits its audit record. The decision and response
// are final before the audit is submitted; audit failures only produce a warning.
func (s *Service) Evaluate(ctx context.Context, req models.AccessRequest) *Evaluation {
	profile, err := s.profiles.GetProfile(ctx, req.UserID)

	var decision models.Decision
	switch {
	case err != nil:
		s.logger.Error("profile lookup failed, denying",
			zap.String("user_id", req.UserID),
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err))
		profile = nil
		decision = models.Deny(models.ReasonSystemError)
	case profile == nil:
		decision = models.Deny(models.ReasonProfileNotFound)
	default:
		decision = s.evaluator.Evaluate(req, profile)
	}

	evaluatedAt := s.now()
	eval := &Evaluation{
		Request:  req,
		Decision: decision,
		Response: BuildResponse(decision, profile, req, evaluatedAt),
		Profile:  profile,
	}

	rec := audit.Record{
		Request:     req,
		Decision:    decision,
		Profile:     profile,
		Suspicious:  s.masker.HasSensitiveFields(req.Metadata),
		EvaluatedAt: evaluatedAt,
	}
	if profile != nil {
		rec.Permissions = s.evaluator.EffectivePermissions(profile)
	}

	if err := s.audit.Submit(ctx, rec); err != nil {
		s.logger.Warn("audit record not persisted",
			zap.String("user_id", req.UserID),
			zap.String("action", string(req.Action)),
			zap.Bool("allowed", decision.Allowed),
			zap.Error(err))
	}

	s.logger.Debug("permission evaluated",
		zap.String("user_id", req.UserID),
		zap.String("action", string(req.Action)),
		zap.Bool("allowed", decision.Allowed),
		zap.String("reason", decision.Reason))

	return eval
}

// Evaluator returns the evaluator in use
func (s *Service) Evaluator() *evaluator.Evaluator {
	return s.evaluator
}
