package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name" validate:"required,max=5"`
	Days  int    `json:"expires_in_days" validate:"min=0,max=365"`
	Email string `json:"email" validate:"omitempty,email"`
}

func TestFromValidator(t *testing.T) {
	v := New()

	cases := []struct {
		in      sample
		field   string
		message string
	}{
		{sample{}, "name", "is required"},
		{sample{Name: "toolong"}, "name", "must be at most 5 characters"},
		{sample{Name: "ok", Days: 400}, "expires_in_days", "must be at most 365"},
		{sample{Name: "ok", Days: -1}, "expires_in_days", "must be at least 0"},
		{sample{Name: "ok", Email: "nope"}, "email", "must be a valid email address"},
	}
	for _, tc := range cases {
		err := FromValidator(v.Struct(tc.in))
		var verr Error
		require.True(t, errors.As(err, &verr), "%+v", tc.in)
		require.Equal(t, tc.field, verr.Field)
		require.Equal(t, tc.message, verr.Message)
	}

	require.NoError(t, v.Struct(sample{Name: "ok", Days: 30}))
}

func TestFromValidator_PassesThroughOtherErrors(t *testing.T) {
	other := errors.New("boom")
	require.Equal(t, other, FromValidator(other))
}
