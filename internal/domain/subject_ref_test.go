package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectRefUnmarshalHexID(t *testing.T) {
	var ref SubjectRef
	require.NoError(t, json.Unmarshal([]byte(`"64a7f0c2e1b2c3d4e5f60718"`), &ref))
	assert.Equal(t, "64a7f0c2e1b2c3d4e5f60718", ref.ID)
	assert.Empty(t, ref.Code)
}

func TestSubjectRefUnmarshalCode(t *testing.T) {
	var ref SubjectRef
	require.NoError(t, json.Unmarshal([]byte(`"CS101"`), &ref))
	assert.Empty(t, ref.ID)
	assert.Equal(t, "CS101", ref.Code)
}

func TestSubjectRefUnmarshalDocument(t *testing.T) {
	var ref SubjectRef
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"64a7f0c2e1b2c3d4e5f60718","code":"CS101"}`), &ref))
	assert.Equal(t, "64a7f0c2e1b2c3d4e5f60718", ref.ID)
	assert.Equal(t, "CS101", ref.Code)
}

func TestSubjectRefUnmarshalEmptyString(t *testing.T) {
	var ref SubjectRef
	require.NoError(t, json.Unmarshal([]byte(`"  "`), &ref))
	assert.True(t, ref.IsZero())
}

func TestSubjectRefUnmarshalRejectsEmptyDocument(t *testing.T) {
	var ref SubjectRef
	err := json.Unmarshal([]byte(`{}`), &ref)
	assert.ErrorIs(t, err, ErrBadSubjectRef)
}

func TestSubjectRefUnmarshalRejectsNumber(t *testing.T) {
	var ref SubjectRef
	err := json.Unmarshal([]byte(`42`), &ref)
	assert.ErrorIs(t, err, ErrBadSubjectRef)
}
