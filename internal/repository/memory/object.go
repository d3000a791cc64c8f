package memory

import (
	"context"
	"slices"

	"kksr-counter/internal/domain"
	"kksr-counter/internal/repository"
)

type objectRepository struct {
	s *Store
}

func (r *objectRepository) Get(ctx context.Context, id int64) (*domain.Object, error) {
	var (
		obj domain.Object
		ok  bool
	)
	r.s.read(ctx, func() {
		obj, ok = r.s.objects[id]
	})

	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	return &obj, nil
}

func (r *objectRepository) ListPublished(ctx context.Context, types ...domain.ObjectType) ([]domain.Object, error) {
	var objects []domain.Object
	r.s.read(ctx, func() {
		for _, obj := range r.s.objects {
			if obj.Status == repository.StatusPublished && slices.Contains(types, obj.Type) {
				objects = append(objects, obj)
			}
		}
	})

	slices.SortFunc(objects, func(a, b domain.Object) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return objects, nil
}

func (r *objectRepository) Upsert(ctx context.Context, obj *domain.Object) error {
	return r.s.write(ctx, func(journal func(func())) error {
		prev, existed := r.s.objects[obj.ID]
		switch {
		case existed:
			obj.CreatedAt = prev.CreatedAt
		case obj.CreatedAt.IsZero():
			obj.CreatedAt = r.s.now()
		}

		r.s.objects[obj.ID] = *obj
		journal(func() {
			if existed {
				r.s.objects[obj.ID] = prev
				return
			}
			delete(r.s.objects, obj.ID)
		})
		return nil
	})
}
