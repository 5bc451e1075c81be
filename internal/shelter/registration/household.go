package registration

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"shelterops/internal/platform/tracing"
	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/storeerr"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
)

// HouseholdResult reports what propagated from the primary to the new member.
// Both fields are nil when the primary had nothing to copy.
type HouseholdResult struct {
	Address      *models.Address      `json:"address,omitempty"`
	Registration *models.Registration `json:"registration,omitempty"`
}

// HouseholdCheckIn copies the primary client's current address to the new
// household member and checks the member in wherever the primary is checked
// in. Everything commits together.
func (e *Engine) HouseholdCheckIn(ctx context.Context, primaryID, memberID id.PersonID) (_ *HouseholdResult, err error) {
	ctx, end := tracing.Start(ctx, "registration", "HouseholdCheckIn",
		attribute.String("person.id", primaryID.String()), attribute.String("member.id", memberID.String()))
	defer end(&err)
	start := time.Now()

	if primaryID == memberID {
		return nil, dErrors.New(dErrors.CodeBadRequest, "a client cannot join their own household")
	}

	result := &HouseholdResult{}
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		primary, err := tx.GetPerson(ctx, primaryID)
		if err != nil {
			return storeerr.Wrap(err, "person", "failed to load primary client")
		}
		member, err := tx.GetPerson(ctx, memberID)
		if err != nil {
			return storeerr.Wrap(err, "person", "failed to load household member")
		}
		if !primary.IsClient() || !member.IsClient() {
			return dErrors.New(dErrors.CodeValidation, "household members must be clients")
		}

		addresses, err := tx.ListAddresses(ctx, primary.ID)
		if err != nil {
			return storeerr.Wrap(err, "address", "failed to list addresses")
		}
		for _, a := range addresses {
			if a.Kind != models.AddressCurrent {
				continue
			}
			cp := *a
			cp.ID = id.NewAddressID()
			cp.PersonID = member.ID
			if err := tx.UpsertAddress(ctx, &cp); err != nil {
				return storeerr.Wrap(err, "address", "failed to copy address")
			}
			result.Address = &cp
			break
		}

		active, err := tx.ListRegistrations(ctx, models.RegistrationFilter{
			PersonID: &primary.ID,
			Statuses: []models.RegistrationStatus{models.RegistrationCheckedIn},
		})
		if err != nil {
			return storeerr.Wrap(err, "registration", "failed to list registrations")
		}
		if len(active) == 0 {
			return nil
		}

		comment := models.CommentClient
		if primary.ReferenceLabel != "" {
			comment = models.CommentClientRefPrefix + primary.ReferenceLabel
		}
		result.Registration, err = e.CheckInClient(ctx, CheckInParams{
			ShelterID: active[0].ShelterID,
			PersonID:  member.ID,
			Comment:   comment,
		})
		return err
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "person", "failed to propagate household")
	}
	if e.metrics != nil {
		e.metrics.ObserveOperation("household_check_in", start)
	}
	return result, nil
}
