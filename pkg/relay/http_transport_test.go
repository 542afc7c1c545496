package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"notesync-be/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_Publish(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL+"/", "records", time.Second)
	ev := events.New(events.CategoryTag, events.TagCreated, "acme", map[string]interface{}{"uniqueid": "t1"})
	require.NoError(t, tr.Publish(context.Background(), ev))

	assert.Equal(t, "/records/tag/broadcast-event", gotPath)
	assert.Equal(t, "tag_created", gotBody["event"])
	assert.Equal(t, "acme", gotBody["tenant"])
}

func TestHTTPTransport_PublishErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "records", time.Second)
	err := tr.Publish(context.Background(), events.New(events.CategoryNote, events.NoteCreated, "acme", nil))
	assert.Error(t, err)
}

func TestHTTPTransport_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tr := NewHTTPTransport(srv.URL, "records", 50*time.Millisecond)
	start := time.Now()
	err := tr.Publish(context.Background(), events.New(events.CategoryNote, events.NoteCreated, "acme", nil))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNew_UnknownTransport(t *testing.T) {
	_, err := New(Config{Transport: "carrier-pigeon"})
	assert.Error(t, err)

	tr, err := New(Config{Transport: "http", BaseURL: "http://relay", Resource: "records"})
	require.NoError(t, err)
	assert.Equal(t, "http", tr.Name())
	assert.Equal(t, "http://relay/records/note/broadcast-event", tr.(*HTTPTransport).URL("note"))
}
