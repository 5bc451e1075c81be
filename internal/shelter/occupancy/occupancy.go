// Package occupancy keeps Shelter.Population equal to the number of
// checked-in registrations.
package occupancy

import (
	"context"

	shelmetrics "shelterops/internal/shelter/metrics"
	"shelterops/internal/shelter/storeerr"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	"shelterops/pkg/requestcontext"
)

type Tracker struct {
	store   store.Store
	metrics *shelmetrics.Metrics
}

type Option func(*Tracker)

func WithMetrics(m *shelmetrics.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

func New(st store.Store, opts ...Option) *Tracker {
	t := &Tracker{store: st}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Recompute counts checked-in registrations and persists the result. It must
// run inside the transaction that changed the registrations; passing that
// transaction's context makes it join.
func (t *Tracker) Recompute(ctx context.Context, shelterID id.ShelterID) (int, error) {
	var population int
	err := t.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.LockShelter(ctx, shelterID)
		if err != nil {
			return err
		}
		population, err = tx.CountCheckedIn(ctx, shelterID)
		if err != nil {
			return err
		}
		if sh.Population == population {
			return nil
		}
		sh.Population = population
		sh.UpdatedAt = requestcontext.Now(ctx)
		return tx.UpdateShelter(ctx, sh)
	})
	if err != nil {
		return 0, storeerr.Wrap(err, "shelter", "failed to recompute occupancy")
	}
	if t.metrics != nil {
		t.metrics.SetPopulation(shelterID.String(), population)
	}
	return population, nil
}
