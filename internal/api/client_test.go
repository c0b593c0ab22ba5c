package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeline_DecodesPageAndStampsOwner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/timeline/bookmarks", r.URL.Path)
		assert.Equal(t, "cur1", r.URL.Query().Get("cursor"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"items":[{"remote_id":"100","full_text":"hi"}],"cursor":"cur2"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "u1")
	page, err := c.Timeline(context.Background(), "bookmarks", "cur1")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "u1", page.Items[0].OwnerID)
	assert.Equal(t, "100", page.Items[0].RemoteID)
	assert.Equal(t, "bookmarks", page.Items[0].Category)
	assert.Equal(t, "cur2", page.Cursor)
}

func TestTimeline_RateLimitCarriesReset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerRateLimitReset, "1700000123")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "u1")
	_, err := c.Timeline(context.Background(), "posts", "")
	require.Error(t, err)

	resetAt, ok := IsRateLimit(err)
	require.True(t, ok)
	assert.Equal(t, time.Unix(1700000123, 0), resetAt)
}

func TestTimeline_RateLimitWithoutHeaderStillPauses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "u1")
	_, err := c.Timeline(context.Background(), "posts", "")
	resetAt, ok := IsRateLimit(err)
	require.True(t, ok)
	assert.True(t, resetAt.After(time.Now()), "fallback reset must be in the future")
}

func TestTimeline_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "expired", "u1")
	_, err := c.Timeline(context.Background(), "likes", "")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))

	_, rateLimited := IsRateLimit(err)
	assert.False(t, rateLimited)
}

func TestConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/items/42/conversation", r.URL.Path)
		w.Write([]byte(`{"items":["part two","part three"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "u1")
	thread, err := c.Conversation(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"part two", "part three"}, thread)
}

func TestItemDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/items/42", r.URL.Path)
		w.Write([]byte(`{"remote_id":"42","media":[{"type":"video","variants":[{"url":"low.mp4","bitrate":100},{"url":"high.mp4","bitrate":900}]}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "u1")
	rec, err := c.ItemDetail(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.OwnerID)
	require.Len(t, rec.Media, 1)
	assert.Equal(t, "high.mp4", rec.Media[0].Variants[len(rec.Media[0].Variants)-1].URL)
}

func TestCreateReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2/replies", r.URL.Path)
		w.Write([]byte(`{"created_id":"777"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "u1")
	id, err := c.CreateReply(context.Background(), "42", "thanks for sharing")
	require.NoError(t, err)
	assert.Equal(t, "777", id)
}

func TestServerError_IsNeitherRateLimitNorAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "u1")
	_, err := c.Timeline(context.Background(), "posts", "")
	require.Error(t, err)

	_, rateLimited := IsRateLimit(err)
	assert.False(t, rateLimited)
	assert.False(t, IsAuthError(err))
}
