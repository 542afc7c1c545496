package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_PayloadRoundTrip(t *testing.T) {
	e := New(CategoryTag, TagDeleted, "acme", map[string]interface{}{"uniqueid": "t1"})
	raw, err := e.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"tag_deleted","tenant":"acme","uniqueid":"t1"}`, string(raw))

	back, err := Decode(CategoryTag, raw)
	require.NoError(t, err)
	assert.Equal(t, "acme", back.Tenant)
	assert.Equal(t, TagDeleted, back.Name)
	assert.Equal(t, "t1", back.Fields["uniqueid"])
}

func TestEvent_UnscopedHasNoTenantKey(t *testing.T) {
	e := New(CategoryNote, "maintenance", "", nil)
	_, ok := e.Payload()["tenant"]
	assert.False(t, ok)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(CategoryNote, []byte(`not json`))
	assert.Error(t, err)
	_, err = Decode(CategoryNote, []byte(`{"tenant":"acme"}`))
	assert.Error(t, err)
}

func TestNamed(t *testing.T) {
	assert.Equal(t, NoteCreated, Named(CategoryNote, "created"))
	assert.Equal(t, TagVectorUpdated, Named(CategoryTag, "vector_updated"))
}
