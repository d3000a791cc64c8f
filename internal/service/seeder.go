package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"kksr-counter/internal/domain"
	"kksr-counter/internal/repository"
	"kksr-counter/pkg/logger"

	"go.uber.org/zap"
)

// SeedOutcome is what a seed call did to an object
type SeedOutcome string

const (
	SeedApplied          SeedOutcome = "seeded"
	SeedSkippedThreshold SeedOutcome = "skipped_threshold"
	SeedSkippedExisting  SeedOutcome = "skipped_existing"
)

// SeedResult is the outcome of seeding one object
type SeedResult struct {
	ObjectID int64               `json:"object_id"`
	Outcome  SeedOutcome         `json:"outcome"`
	Counters domain.CounterState `json:"counters"`
}

// RegenerateSummary counts the outcomes of a RegenerateAll run
type RegenerateSummary struct {
	Total   int `json:"total"`
	Seeded  int `json:"seeded"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// errSkipSeed aborts a counter update without writing
type errSkipSeed struct {
	outcome SeedOutcome
}

func (e errSkipSeed) Error() string {
	return string(e.outcome)
}

// Seeder writes plausible starting rating counters for objects without data
type Seeder struct {
	repos    *repository.Repositories
	settings *SettingsService
	cache    *CacheService
	logger   *logger.Logger
}

// NewSeeder creates a new seeder
func NewSeeder(repos *repository.Repositories, settings *SettingsService, cache *CacheService, logger *logger.Logger) *Seeder {
	return &Seeder{
		repos:    repos,
		settings: settings,
		cache:    cache,
		logger:   logger,
	}
}

// SeedCounters returns the seeded rating counters of an object. The same
// object id and settings always produce the same counters.
func SeedCounters(objectID int64, settings domain.Settings) domain.CounterState {
	rng := rand.New(rand.NewSource(objectID))

	casts := int64(settings.MinVotes)
	if settings.MaxVotes > settings.MinVotes {
		casts += int64(rng.Intn(settings.MaxVotes - settings.MinVotes + 1))
	}

	avg := domain.RoundTo(settings.SeedMinStars+rng.Float64()*(settings.SeedMaxStars-settings.SeedMinStars), 1)
	total := float64(casts) * avg

	state := domain.CounterState{
		ObjectID:    objectID,
		RatingCount: casts,
		RatingTotal: total,
		Seeded:      true,
	}
	if casts > 0 {
		state.RatingAverage = total / float64(casts)
	}
	return state
}

// Seed writes seed counters for one object. Objects at or above
// threshold_votes are never touched. Without force, any existing rating
// count protects the object; with force, only counters still holding seed
// values are rewritten.
func (s *Seeder) Seed(ctx context.Context, objectID int64, force bool) (*SeedResult, error) {
	obj, err := s.repos.Object.Get(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if !obj.Type.Valid() {
		return nil, fmt.Errorf("%w: object %d is a %s", domain.ErrUnknownObjectType, obj.ID, obj.Type)
	}

	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	return s.seedAndInvalidate(ctx, obj.ID, force, settings)
}

// OnSave registers a saved post or product and seeds it when it has no
// rating data yet.
func (s *Seeder) OnSave(ctx context.Context, obj domain.Object) (*SeedResult, error) {
	if !obj.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownObjectType, obj.Type)
	}
	if err := s.repos.Object.Upsert(ctx, &obj); err != nil {
		return nil, err
	}

	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	return s.seedAndInvalidate(ctx, obj.ID, false, settings)
}

func (s *Seeder) seedAndInvalidate(ctx context.Context, objectID int64, force bool, settings domain.Settings) (*SeedResult, error) {
	result, err := s.seed(ctx, objectID, force, settings)
	if err == nil && result.Outcome == SeedApplied && s.cache != nil {
		s.cache.InvalidateCounters(ctx, objectID)
	}
	return result, err
}

func (s *Seeder) seed(ctx context.Context, objectID int64, force bool, settings domain.Settings) (*SeedResult, error) {
	state, err := s.repos.Counter.Update(ctx, objectID, func(current domain.CounterState) (domain.CounterState, error) {
		switch {
		case current.RatingCount >= int64(settings.ThresholdVotes):
			return current, errSkipSeed{SeedSkippedThreshold}
		case current.RatingCount > 0 && (!force || !current.Seeded):
			return current, errSkipSeed{SeedSkippedExisting}
		}

		seeded := SeedCounters(objectID, settings)
		seeded.Sales = current.Sales
		return seeded, nil
	})

	var skip errSkipSeed
	if errors.As(err, &skip) {
		current, getErr := s.repos.Counter.Get(ctx, objectID)
		if getErr != nil {
			return nil, getErr
		}
		return &SeedResult{ObjectID: objectID, Outcome: skip.outcome, Counters: current}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("seed object %d: %w", objectID, err)
	}

	s.logger.Debug("Object seeded",
		zap.Int64("object_id", objectID),
		zap.Int64("casts", state.RatingCount),
		zap.Float64("average", state.DisplayAverage()))

	return &SeedResult{ObjectID: objectID, Outcome: SeedApplied, Counters: state}, nil
}

// RegenerateAll seeds every published post and product. Objects are
// independent: a failure is logged and counted, and the run continues.
// Cached counter snapshots are dropped in one sweep once any object was
// seeded.
func (s *Seeder) RegenerateAll(ctx context.Context, force bool) (*RegenerateSummary, error) {
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	objects, err := s.repos.Object.ListPublished(ctx, domain.ObjectPost, domain.ObjectProduct)
	if err != nil {
		return nil, err
	}

	summary := &RegenerateSummary{Total: len(objects)}
	defer func() {
		if summary.Seeded > 0 && s.cache != nil {
			s.cache.InvalidateAllCounters(context.WithoutCancel(ctx))
		}
	}()

	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result, err := s.seed(ctx, obj.ID, force, settings)
		switch {
		case err != nil:
			summary.Failed++
			s.logger.Warn("Failed to seed object",
				zap.Int64("object_id", obj.ID),
				zap.Error(err))
		case result.Outcome == SeedApplied:
			summary.Seeded++
		default:
			summary.Skipped++
		}
	}

	s.logger.Info("Regeneration finished",
		zap.Bool("force", force),
		zap.Int("total", summary.Total),
		zap.Int("seeded", summary.Seeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))

	return summary, nil
}
