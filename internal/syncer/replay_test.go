package syncer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketbizz/pocketsync/internal/ledger"
)

var sampleRecord = ledger.QueuedTransaction{
	ID:             7,
	IdempotencyKey: "key-7",
	Type:           ledger.Income,
	Amount:         decimal.RequireFromString("99.90"),
	Description:    "Kuih raya",
	Channel:        ledger.ChannelTikTok,
	Category:       "Sales",
	CreatedAt:      time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC),
}

func TestHTTPReplayer_PostsForm(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		got = r
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	r := NewHTTPReplayer(srv.URL+DefaultSubmitPath,
		WithSessionCookie("session=abc"),
		WithBearerToken("tok"),
	)
	require.NoError(t, r.Replay(context.Background(), sampleRecord))

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, DefaultSubmitPath, got.URL.Path)
	assert.Equal(t, "application/x-www-form-urlencoded", got.Header.Get("Content-Type"))
	assert.Equal(t, "key-7", got.Header.Get("Idempotency-Key"))
	assert.Equal(t, "Bearer tok", got.Header.Get("Authorization"))
	cookie, err := got.Cookie("session")
	require.NoError(t, err)
	assert.Equal(t, "abc", cookie.Value)

	assert.Equal(t, "income", got.PostForm.Get("type"))
	assert.Equal(t, "99.9", got.PostForm.Get("amount"))
	assert.Equal(t, "Kuih raya", got.PostForm.Get("description"))
	assert.Equal(t, "tiktok", got.PostForm.Get("channel"))
	assert.Equal(t, "Sales", got.PostForm.Get("category"))
}

func TestHTTPReplayer_FollowsRedirectToFinalStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(DefaultSubmitPath, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	assert.NoError(t, NewHTTPReplayer(srv.URL+DefaultSubmitPath).Replay(context.Background(), sampleRecord))
}

func TestHTTPReplayer_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewHTTPReplayer(srv.URL).Replay(context.Background(), sampleRecord)
	require.Error(t, err)
	assert.True(t, IsReplayFailed(err))

	var re *ReplayError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, int64(7), re.ID)
	assert.Equal(t, http.StatusBadRequest, re.StatusCode)
	assert.Contains(t, err.Error(), "REPLAY_FAILED")
}

func TestHTTPReplayer_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewHTTPReplayer(url).Replay(context.Background(), sampleRecord)
	require.Error(t, err)
	assert.True(t, IsReplayFailed(err))

	var re *ReplayError
	require.ErrorAs(t, err, &re)
	assert.Zero(t, re.StatusCode)
	assert.Error(t, re.Err)
}
