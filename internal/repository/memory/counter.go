package memory

import (
	"context"
	"maps"

	"kksr-counter/internal/domain"
	"kksr-counter/internal/repository"
)

type counterRepository struct {
	s *Store
}

func (r *counterRepository) Get(ctx context.Context, objectID int64) (domain.CounterState, error) {
	var state domain.CounterState
	r.s.read(ctx, func() {
		state = repository.DecodeCounterMeta(objectID, r.s.meta[objectID])
	})
	return state, nil
}

func (r *counterRepository) Update(ctx context.Context, objectID int64, mutate repository.CounterMutation) (domain.CounterState, error) {
	var result domain.CounterState

	err := r.s.write(ctx, func(journal func(func())) error {
		if _, ok := r.s.objects[objectID]; !ok {
			return domain.ErrObjectNotFound
		}

		stored := r.s.meta[objectID]
		current := repository.DecodeCounterMeta(objectID, stored)
		next, err := mutate(current)
		if err != nil {
			return err
		}
		next.ObjectID = objectID

		set, del := repository.EncodeCounterMeta(current, next)
		updated := maps.Clone(stored)
		if updated == nil {
			updated = make(map[string]string, len(set))
		}
		maps.Copy(updated, set)
		for _, k := range del {
			delete(updated, k)
		}

		r.s.meta[objectID] = updated
		journal(func() {
			if stored == nil {
				delete(r.s.meta, objectID)
				return
			}
			r.s.meta[objectID] = stored
		})

		result = next
		return nil
	})

	return result, err
}

// Meta returns a copy of the stored meta values of an object.
func (s *Store) Meta(objectID int64) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.meta[objectID])
}
