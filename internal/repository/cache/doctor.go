package cache

import (
	"context"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

// DoctorRepository keeps doctor records in process memory. Doctor
// profiles change rarely and are read on every booking and notification.
type DoctorRepository struct {
	next  repository.DoctorRepository
	cache *gocache.Cache
}

func NewDoctorRepository(next repository.DoctorRepository, ttl, cleanupInterval time.Duration) *DoctorRepository {
	return &DoctorRepository{
		next:  next,
		cache: gocache.New(ttl, cleanupInterval),
	}
}

func (r *DoctorRepository) GetDoctor(ctx context.Context, id int64) (*model.Doctor, error) {
	key := strconv.FormatInt(id, 10)
	if cached, ok := r.cache.Get(key); ok {
		doctor := *cached.(*model.Doctor)
		return &doctor, nil
	}

	doctor, err := r.next.GetDoctor(ctx, id)
	if err != nil {
		// misses are not cached so a newly added doctor is visible at once
		return nil, err
	}

	stored := *doctor
	r.cache.SetDefault(key, &stored)
	return doctor, nil
}

// Invalidate drops a cached doctor after its profile changed.
func (r *DoctorRepository) Invalidate(id int64) {
	r.cache.Delete(strconv.FormatInt(id, 10))
}
