package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kksr-counter/internal/domain"
	"kksr-counter/internal/repository"
	"kksr-counter/pkg/logger"

	"go.uber.org/zap"
)

// IncrementEngine decides whether a page view may move a counter and applies
// the admitted increments.
type IncrementEngine struct {
	tx       repository.Transactor
	throttle repository.ThrottleRepository
	objects  repository.ObjectRepository
	counters *CounterStore
	sessions SessionGate
	settings *SettingsService
	cache    *CacheService
	logger   *logger.Logger
	now      func() time.Time
}

// EngineDeps groups the collaborators of an IncrementEngine
type EngineDeps struct {
	Repos    *repository.Repositories
	Counters *CounterStore
	Sessions SessionGate
	Settings *SettingsService
	Cache    *CacheService
	Logger   *logger.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewIncrementEngine creates a new increment engine
func NewIncrementEngine(deps EngineDeps) *IncrementEngine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &IncrementEngine{
		tx:       deps.Repos.Tx,
		throttle: deps.Repos.Throttle,
		objects:  deps.Repos.Object,
		counters: deps.Counters,
		sessions: deps.Sessions,
		settings: deps.Settings,
		cache:    deps.Cache,
		logger:   deps.Logger,
		now:      now,
	}
}

// Evaluate runs the admission checks for one (visitor, object, metric) in
// order and stops at the first denial. Read failures deny.
func (e *IncrementEngine) Evaluate(ctx context.Context, identity domain.Identity, session string, objectID int64, metric domain.MetricType, settings domain.Settings) domain.Decision {
	if !metric.Valid() {
		return domain.Deny(metric, domain.ReasonInvalid)
	}
	if identity == "" {
		return domain.Deny(metric, domain.ReasonNoIdentity)
	}

	limits := settings.ForMetric(metric)
	if !limits.AutoIncrement {
		return domain.Deny(metric, domain.ReasonDisabled)
	}

	marked, err := e.sessions.IsMarked(ctx, session, objectID, metric)
	if err != nil {
		e.logDenied(err, objectID, metric, "session gate read failed")
		return domain.Deny(metric, domain.ReasonUnavailable)
	}
	if marked {
		return domain.Deny(metric, domain.ReasonSession)
	}

	state, err := e.counters.Get(ctx, objectID)
	if err != nil {
		e.logDenied(err, objectID, metric, "counter read failed")
		return domain.Deny(metric, domain.ReasonUnavailable)
	}
	if limits.Blocks(state.Count(metric)) {
		return domain.Deny(metric, domain.ReasonThreshold)
	}

	last, err := e.throttle.LastTriggered(ctx, domain.ThrottleKey{Identity: identity, ObjectID: objectID, Metric: metric})
	if err != nil {
		e.logDenied(err, objectID, metric, "throttle read failed")
		return domain.Deny(metric, domain.ReasonUnavailable)
	}
	if last != nil && domain.InCooldown(*last, e.now(), limits.Cooldown) {
		return domain.Deny(metric, domain.ReasonCooldown)
	}

	return domain.Allow(metric)
}

// Admit applies an allowed increment. The throttle claim and the counter
// update commit together; a claim lost to a concurrent request or a
// threshold reached in the meantime denies without writing anything. The
// session mark is best effort and written after commit.
func (e *IncrementEngine) Admit(ctx context.Context, identity domain.Identity, session string, obj domain.Object, metric domain.MetricType, settings domain.Settings) domain.Decision {
	at := e.now()
	rec := domain.ThrottleRecord{
		ThrottleKey: domain.ThrottleKey{
			Identity:   identity,
			ObjectID:   obj.ID,
			ObjectType: obj.Type,
			Metric:     metric,
		},
		LastTriggeredAt: at,
	}

	var state domain.CounterState
	err := e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := e.throttle.Claim(ctx, rec, settings.ForMetric(metric).Cooldown); err != nil {
			return err
		}

		var err error
		state, err = e.counters.ApplyIncrement(ctx, obj.ID, metric, settings)
		return err
	})

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrCooldownActive):
		return domain.Deny(metric, domain.ReasonRaceLost)
	case errors.Is(err, domain.ErrThresholdReached):
		return domain.Deny(metric, domain.ReasonThreshold)
	default:
		e.logger.Warn("Increment failed",
			zap.Int64("object_id", obj.ID),
			zap.String("metric", metric.String()),
			zap.String("visitor", identity.Short()),
			zap.Error(err))
		return domain.Deny(metric, domain.ReasonApplyFailed)
	}

	if err := e.sessions.Mark(ctx, session, obj.ID, metric); err != nil {
		e.logger.Warn("Failed to mark session",
			zap.Int64("object_id", obj.ID),
			zap.String("metric", metric.String()),
			zap.Error(err))
	}
	if e.cache != nil {
		e.cache.InvalidateCounters(ctx, obj.ID)
	}

	e.logger.Debug("Increment admitted",
		zap.Int64("object_id", obj.ID),
		zap.String("metric", metric.String()),
		zap.String("visitor", identity.Short()),
		zap.Int64("count", state.Count(metric)))

	decision := domain.Allow(metric)
	decision.Counters = &state
	return decision
}

// OnPageView handles one page view of a post or product. Every metric of
// the object type is evaluated and admitted independently. Only malformed
// events and unknown objects return an error; every other failure shows up
// as a denied decision.
func (e *IncrementEngine) OnPageView(ctx context.Context, pv domain.PageView) ([]domain.Decision, error) {
	if !pv.ObjectType.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownObjectType, pv.ObjectType)
	}

	metrics := pv.ObjectType.Metrics()
	decisions := make([]domain.Decision, 0, len(metrics))

	obj, err := e.objects.Get(ctx, pv.ObjectID)
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return nil, err
		}
		e.logDenied(err, pv.ObjectID, "", "object read failed")
		return denyAll(metrics, domain.ReasonUnavailable), nil
	}
	if obj.Type != pv.ObjectType {
		return nil, fmt.Errorf("%w: object %d is a %s", domain.ErrUnknownObjectType, obj.ID, obj.Type)
	}

	identity, err := ComputeIdentity(pv.IP, pv.UserAgent)
	if err != nil {
		return denyAll(metrics, domain.ReasonNoIdentity), nil
	}

	settings, err := e.settings.Current(ctx)
	if err != nil {
		e.logDenied(err, pv.ObjectID, "", "settings read failed")
		return denyAll(metrics, domain.ReasonUnavailable), nil
	}

	for _, metric := range metrics {
		decision := e.Evaluate(ctx, identity, pv.Session, obj.ID, metric, settings)
		if decision.Allowed {
			decision = e.Admit(ctx, identity, pv.Session, *obj, metric, settings)
		}
		decisions = append(decisions, decision)
	}

	return decisions, nil
}

// PurgeThrottle deletes every throttle record
func (e *IncrementEngine) PurgeThrottle(ctx context.Context) (int64, error) {
	n, err := e.throttle.Purge(ctx)
	if err != nil {
		return 0, err
	}

	e.logger.Info("Throttle records purged", zap.Int64("deleted", n))
	return n, nil
}

func (e *IncrementEngine) logDenied(err error, objectID int64, metric domain.MetricType, msg string) {
	e.logger.Warn(msg,
		zap.Int64("object_id", objectID),
		zap.String("metric", metric.String()),
		zap.Error(err))
}

func denyAll(metrics []domain.MetricType, reason domain.Reason) []domain.Decision {
	decisions := make([]domain.Decision, 0, len(metrics))
	for _, m := range metrics {
		decisions = append(decisions, domain.Deny(m, reason))
	}
	return decisions
}
