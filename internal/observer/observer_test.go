package observer

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twillot/twillot/internal/workflow"
)

func TestRoundTrip_WatchedCallIsEmittedAndUnaltered(t *testing.T) {
	var serverSaw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		serverSaw = string(raw)
		w.Write([]byte(`{"created_id":"900"}`))
	}))
	defer srv.Close()

	obs := New(nil)
	client := &http.Client{Transport: obs}

	reqBody := `{"variables":{"target_id":"42"}}`
	resp, err := client.Post(srv.URL+"/i/api/CreateBookmark", "application/json", strings.NewReader(reqBody))
	require.NoError(t, err)
	defer resp.Body.Close()

	// The original exchange is untouched on both sides.
	assert.Equal(t, reqBody, serverSaw)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"created_id":"900"}`, string(raw))

	call := <-obs.Calls()
	assert.Equal(t, "CreateBookmark", call.Endpoint)
	assert.Equal(t, "42", call.Request.Body.Variables.TargetID)
	assert.Equal(t, "900", call.Response.Body.CreatedID)
	assert.Equal(t, http.StatusOK, call.Response.Status)
}

func TestRoundTrip_UnwatchedEndpointEmitsNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	obs := New(nil)
	client := &http.Client{Transport: obs}

	resp, err := client.Get(srv.URL + "/i/api/HomeTimeline")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, obs.Calls())
}

func TestRoundTrip_FailedCallIsDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	obs := New(nil)
	client := &http.Client{Transport: obs}

	resp, err := client.Post(srv.URL+"/i/api/CreateBookmark", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, obs.Calls(), "a rejected action fires no trigger")
}

func TestRoundTrip_AtMostOneEmissionPerCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	obs := New(nil)
	client := &http.Client{Transport: obs}

	resp, err := client.Post(srv.URL+"/i/api/DeleteBookmark", "application/json",
		strings.NewReader(`{"variables":{"target_id":"7"}}`))
	require.NoError(t, err)
	resp.Body.Close()

	<-obs.Calls()
	assert.Empty(t, obs.Calls())
}

func TestRoundTrip_MalformedBodyStillClassifiable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	obs := New(nil)
	client := &http.Client{Transport: obs}

	resp, err := client.Post(srv.URL+"/i/api/CreateRepost", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	resp.Body.Close()

	call := <-obs.Calls()
	assert.Equal(t, "CreateRepost", call.Endpoint)
	assert.Equal(t, workflow.Variables{}, call.Request.Body.Variables)
}

func TestEndpointName(t *testing.T) {
	assert.Equal(t, "CreateBookmark", endpointName("/i/api/graphql/xyz/CreateBookmark"))
	assert.Equal(t, "CreateBookmark", endpointName("/i/api/graphql/xyz/CreateBookmark/"))
	assert.Equal(t, "plain", endpointName("plain"))
}
