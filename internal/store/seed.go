package store

import (
	"context"
	"errors"
	"fmt"

	"shelterops/internal/shelter/models"
	id "shelterops/pkg/domain"
	"shelterops/pkg/platform/sentinel"
)

// SeedShelterTypes inserts the built-in shelter types that are missing and
// returns all of them keyed by name.
func SeedShelterTypes(ctx context.Context, s Store) (map[string]*models.ShelterType, error) {
	out := make(map[string]*models.ShelterType, 2)
	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, name := range []string{models.TypeNominated, models.TypeCommunity} {
			st, err := tx.FindShelterTypeByName(ctx, name)
			switch {
			case err == nil:
			case errors.Is(err, sentinel.ErrNotFound):
				st = &models.ShelterType{ID: id.NewShelterTypeID(), Name: name}
				if err := tx.InsertShelterType(ctx, st); err != nil {
					return fmt.Errorf("insert shelter type %s: %w", name, err)
				}
			default:
				return fmt.Errorf("find shelter type %s: %w", name, err)
			}
			out[name] = st
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
