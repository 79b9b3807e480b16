package store

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "serialization failure is a conflict",
			err:  &pq.Error{Code: "40001"},
			want: ErrConflict,
		},
		{
			name: "deadlock is a conflict",
			err:  &pq.Error{Code: "40P01"},
			want: ErrConflict,
		},
		{
			name: "unique violation is a constraint error",
			err:  &pq.Error{Code: "23505"},
			want: ErrConstraint,
		},
		{
			name: "not null violation is a constraint error",
			err:  &pq.Error{Code: "23502"},
			want: ErrConstraint,
		},
		{
			name: "anything else is unavailability",
			err:  errors.New("connection refused"),
			want: ErrUnavailable,
		},
		{
			name: "unrelated pq error is unavailability",
			err:  &pq.Error{Code: "57P01"},
			want: ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError("test op", tt.err)
			assert.ErrorIs(t, got, tt.want)
		})
	}
}
