package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"shelterops/pkg/platform/sentinel"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		code string
		want error
	}{
		{name: "unique violation", code: "23505", want: sentinel.ErrConflict},
		{name: "serialization failure", code: "40001", want: sentinel.ErrConflict},
		{name: "deadlock", code: "40P01", want: sentinel.ErrConflict},
		{name: "foreign key violation", code: "23503", want: sentinel.ErrNotFound},
		{name: "check violation", code: "23514", want: sentinel.ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translate(fmt.Errorf("insert: %w", &pgconn.PgError{Code: tt.code, Message: "boom"}))
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "boom")
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		plain := errors.New("connection reset")
		assert.Same(t, plain, translate(plain))
		assert.NoError(t, translate(nil))
	})
}
