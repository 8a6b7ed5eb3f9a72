package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("cancel occurrence: %w", NewConflict("override already exists for %s", "2024-01-15"))

	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "override already exists for 2024-01-15")
}

func TestMalformedRuleKeepsCause(t *testing.T) {
	cause := errors.New("wrong format")
	err := NewMalformedRule(cause, "series %d", 7)

	require.True(t, errors.Is(err, ErrMalformedRule))
	require.True(t, errors.Is(err, cause))
	assert.Equal(t, "series 7: wrong format", err.Error())
}

func TestKindOfPlainErrors(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("connection refused")))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("lookup: %w", ErrNotFound)))
}

func TestIsAny(t *testing.T) {
	err := NewPastCutover("cutover %s before %s", "2024-01-01", "2024-02-01")
	assert.True(t, Is(err, ErrConflict, ErrPastCutover))
	assert.False(t, Is(err, ErrConflict, ErrNotFound))
}
