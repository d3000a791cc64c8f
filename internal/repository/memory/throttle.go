package memory

import (
	"context"
	"time"

	"kksr-counter/internal/domain"
)

type throttleID struct {
	identity domain.Identity
	objectID int64
	metric   domain.MetricType
}

func idOf(key domain.ThrottleKey) throttleID {
	return throttleID{identity: key.Identity, objectID: key.ObjectID, metric: key.Metric}
}

type throttleRepository struct {
	s *Store
}

func (r *throttleRepository) LastTriggered(ctx context.Context, key domain.ThrottleKey) (*time.Time, error) {
	var (
		last  time.Time
		found bool
	)
	r.s.read(ctx, func() {
		last, found = r.s.throttle[idOf(key)]
	})

	if !found {
		return nil, nil
	}
	return &last, nil
}

func (r *throttleRepository) Record(ctx context.Context, rec domain.ThrottleRecord) error {
	return r.s.write(ctx, func(journal func(func())) error {
		r.put(rec, journal)
		return nil
	})
}

func (r *throttleRepository) Claim(ctx context.Context, rec domain.ThrottleRecord, cooldown time.Duration) error {
	return r.s.write(ctx, func(journal func(func())) error {
		if last, ok := r.s.throttle[idOf(rec.ThrottleKey)]; ok && domain.InCooldown(last, rec.LastTriggeredAt, cooldown) {
			return domain.ErrCooldownActive
		}
		r.put(rec, journal)
		return nil
	})
}

func (r *throttleRepository) put(rec domain.ThrottleRecord, journal func(func())) {
	id := idOf(rec.ThrottleKey)
	prevTime, existed := r.s.throttle[id]
	prevType := r.s.types[id]

	r.s.throttle[id] = rec.LastTriggeredAt
	r.s.types[id] = rec.ObjectType

	journal(func() {
		if existed {
			r.s.throttle[id] = prevTime
			r.s.types[id] = prevType
			return
		}
		delete(r.s.throttle, id)
		delete(r.s.types, id)
	})
}

func (r *throttleRepository) Purge(ctx context.Context) (int64, error) {
	var n int64
	err := r.s.write(ctx, func(journal func(func())) error {
		prevTimes, prevTypes := r.s.throttle, r.s.types
		n = int64(len(prevTimes))

		r.s.throttle = make(map[throttleID]time.Time)
		r.s.types = make(map[throttleID]domain.ObjectType)

		journal(func() {
			r.s.throttle, r.s.types = prevTimes, prevTypes
		})
		return nil
	})
	return n, err
}
