package service

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"kksr-counter/internal/domain"
	"kksr-counter/internal/repository"
	apperrors "kksr-counter/pkg/errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// SettingsService resolves and updates the engine settings
type SettingsService struct {
	repo     repository.SettingsRepository
	validate *validator.Validate
	logger   *zap.Logger
}

// NewSettingsService creates a new settings service
func NewSettingsService(repo repository.SettingsRepository, logger *zap.Logger) *SettingsService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]; name != "" && name != "-" {
			return name
		}
		return fld.Name
	})

	return &SettingsService{
		repo:     repo,
		validate: validate,
		logger:   logger,
	}
}

// Current returns the stored settings with defaults for missing keys.
// Load failures are returned as is; callers deny on them.
func (s *SettingsService) Current(ctx context.Context) (domain.Settings, error) {
	patch, err := s.repo.Load(ctx)
	if err != nil {
		return domain.Settings{}, err
	}

	settings := domain.DefaultSettings()
	if patch != nil {
		settings = patch.ApplyTo(settings)
	}
	return settings.Normalize(), nil
}

// Update validates patch, merges it over the current settings and stores
// the result.
func (s *SettingsService) Update(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error) {
	if err := s.validate.Struct(patch); err != nil {
		return domain.Settings{}, apperrors.NewValidationError("Invalid settings", validationDetails(err))
	}

	current, err := s.Current(ctx)
	if err != nil {
		return domain.Settings{}, err
	}

	next := patch.ApplyTo(current)
	if details := rangeErrors(next); len(details) > 0 {
		return domain.Settings{}, apperrors.NewValidationError("Invalid settings", details)
	}

	next = next.Normalize()
	if err := s.repo.Save(ctx, next); err != nil {
		return domain.Settings{}, err
	}

	s.logger.Info("Settings updated",
		zap.Bool("rating_auto_increment", next.RatingAutoIncrement),
		zap.Int("rating_threshold", next.RatingThreshold),
		zap.Bool("sales_auto_increment", next.SalesAutoIncrement),
		zap.Int("sales_threshold", next.SalesThreshold))
	return next, nil
}

// Reset deletes the stored settings so every key falls back to its default
func (s *SettingsService) Reset(ctx context.Context) error {
	return s.repo.Delete(ctx)
}

func rangeErrors(s domain.Settings) map[string]interface{} {
	details := make(map[string]interface{})
	if s.RatingMinStars > s.RatingMaxStars {
		details["rating_min_stars"] = "must not exceed rating_max_stars"
	}
	if s.MinVotes > s.MaxVotes {
		details["min_votes"] = "must not exceed max_votes"
	}
	if s.SeedMinStars > s.SeedMaxStars {
		details["seed_min_stars"] = "must not exceed seed_max_stars"
	}
	return details
}

func validationDetails(err error) map[string]interface{} {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return map[string]interface{}{"settings": err.Error()}
	}

	details := make(map[string]interface{}, len(errs))
	for _, e := range errs {
		if e.Param() != "" {
			details[e.Field()] = e.Tag() + "=" + e.Param()
			continue
		}
		details[e.Field()] = e.Tag()
	}
	return details
}
