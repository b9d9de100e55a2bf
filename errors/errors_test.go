package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	t.Run("wrapped sentinels survive Is checks", func(t *testing.T) {
		err := Wrap(ErrNotFound, "prompt pmt_ABC123")
		assert.True(t, Is(err, ErrNotFound))
		assert.False(t, Is(err, ErrInvalidRequest))

		err = Wrapf(ErrInvalidRequest, "temperature %v out of range", 3.5)
		assert.True(t, Is(err, ErrInvalidRequest))
	})

	t.Run("constructor helpers preserve sentinel type", func(t *testing.T) {
		err := NewNotFoundError("prompt not found: %s", "pmt_ABC123")
		assert.True(t, Is(err, ErrNotFound))
		assert.Contains(t, err.Error(), "pmt_ABC123")

		err = NewInvalidRequestError("name is required")
		assert.True(t, Is(err, ErrInvalidRequest))

		err = NewConflictError("prompt %s is not active", "pmt_ABC123")
		assert.True(t, Is(err, ErrConflict))
	})
}

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"sentinel", ErrNotFound, true},
		{"wrapped sentinel", Wrap(ErrNotFound, "context"), true},
		{"string suffix", New("execution record not found"), true},
		{"string with id", New("prompt not found: pmt_XYZ"), true},
		{"unrelated error", New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNotFoundError(tt.err))
		})
	}
}

func TestStackTraces(t *testing.T) {
	err := New("boom")
	require.Error(t, err)

	trace := GetStack(err)
	assert.NotNil(t, trace, "errors created through this package carry stack traces")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go", "detailed format should reference the creation site")
}
