package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/weights"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// CreateWeightProfile validates and stores a new, inactive profile version.
func (s *Service) CreateWeightProfile(ctx context.Context, p model.WeightProfile) (model.WeightProfile, error) {
	p.Version = strings.TrimSpace(p.Version)
	if err := weights.Validate(p, s.weightTolerance); err != nil {
		return model.WeightProfile{}, err
	}
	p.Active = false
	p.ActivatedAt = nil
	p.CreatedAt = s.now().UTC()
	if err := s.store.CreateProfile(ctx, p); err != nil {
		return model.WeightProfile{}, err
	}
	s.logger.Info(ctx, "weight profile created",
		logger.String("version", p.Version),
		logger.Int("categories", len(p.Weights)),
	)
	return p, nil
}

// ListWeightProfiles returns every stored profile version.
func (s *Service) ListWeightProfiles(ctx context.Context) ([]model.WeightProfile, error) {
	return s.store.ListProfiles(ctx)
}

// ActiveWeightProfile returns the active profile or model.ErrNoActiveProfile.
func (s *Service) ActiveWeightProfile(ctx context.Context) (model.WeightProfile, error) {
	return s.store.ActiveProfile(ctx)
}

// ActivateWeightProfile makes version the only active profile. A profile whose
// weights no longer validate under the configured tolerance is refused.
func (s *Service) ActivateWeightProfile(ctx context.Context, version string) error {
	p, err := s.store.GetProfile(ctx, version)
	if err != nil {
		return err
	}
	if err := weights.Validate(p, s.weightTolerance); err != nil {
		return err
	}
	if err := s.store.ActivateProfile(ctx, version, s.now().UTC()); err != nil {
		return err
	}
	metrics.RecordProfileActivation()
	s.logger.Info(ctx, "weight profile activated", logger.String("version", version))
	return nil
}

// activeProfileForRun loads and re-validates the profile a computation will use.
func (s *Service) activeProfileForRun(ctx context.Context) (model.WeightProfile, error) {
	p, err := s.store.ActiveProfile(ctx)
	if err != nil {
		return model.WeightProfile{}, err
	}
	if err := weights.Validate(p, s.weightTolerance); err != nil {
		return model.WeightProfile{}, err
	}
	return p, nil
}

// bootstrapProfiles stores configured profiles that do not exist yet and
// activates the configured one when nothing is active.
func (s *Service) bootstrapProfiles(ctx context.Context) error {
	for _, p := range s.profiles {
		_, err := s.CreateWeightProfile(ctx, p)
		switch {
		case err == nil:
		case errors.Is(err, model.ErrProfileExists):
			s.logger.Debug(ctx, "profile already stored", logger.String("version", p.Version))
		default:
			return fmt.Errorf("bootstrap profile %q: %w", p.Version, err)
		}
	}

	if s.activeProfile == "" {
		return nil
	}
	_, err := s.store.ActiveProfile(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrNoActiveProfile) {
		return err
	}
	if err := s.ActivateWeightProfile(ctx, s.activeProfile); err != nil {
		return fmt.Errorf("bootstrap activation of %q: %w", s.activeProfile, err)
	}
	return nil
}
