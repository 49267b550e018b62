package common

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docintake/constants"
)

func TestValidatorCollectsEveryFailure(t *testing.T) {
	v := NewValidator().
		Field("filename", "a/b.pdf", Required, NoPathSeparators).
		Field("building_id", strings.Repeat("x", 5), MaxLen(4)).
		Field("unit_id", "u1", MaxLen(4))

	require.True(t, v.HasErrors())
	require.Len(t, v.Errors(), 2)
	assert.Equal(t, "filename", v.Errors()[0].Field)
	assert.Equal(t, "building_id", v.Errors()[1].Field)

	err := ValidateAndReturnError(v)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, constants.ErrCodeInvalidInput, CodeOf(err))
	assert.Contains(t, MessageOf(err), "filename must be a bare file name")
	assert.Contains(t, MessageOf(err), "building_id must be at most 4 characters")

	assert.NoError(t, ValidateAndReturnError(NewValidator().Field("filename", "fra.pdf", Required, NoPathSeparators)))
}

func TestParseID(t *testing.T) {
	id := uuid.New()
	got, err := ParseID("job_id", " "+id.String()+" ")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, raw := range []string{"", "not-a-uuid"} {
		_, err := ParseID("job_id", raw)
		var ae *AppError
		require.True(t, errors.As(err, &ae), raw)
		assert.Equal(t, constants.ErrCodeInvalidInput, ae.Code)
	}
}
