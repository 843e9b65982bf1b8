package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddwatch/reddwatch/internal/config"
)

type fakeAPI struct {
	tokenRequests   atomic.Int64
	listingRequests atomic.Int64
	listingStatus   int
	retryAfter      string
	tokenStatus     int
	expiresIn       int
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenRequests.Add(1)
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			return
		}
		expires := f.expiresIn
		if expires == 0 {
			expires = 3600
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-123",
			"expires_in":   expires,
		})
	})
	mux.HandleFunc("/r/", func(w http.ResponseWriter, r *http.Request) {
		f.listingRequests.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.listingStatus != 0 {
			if f.retryAfter != "" {
				w.Header().Set("Retry-After", f.retryAfter)
			}
			w.WriteHeader(f.listingStatus)
			return
		}
		fmt.Fprint(w, `{
			"data": {"children": [
				{"data": {"id": "p1", "title": "AAPL earnings", "selftext": "body",
					"author": "alice", "subreddit": "stocks", "score": 42,
					"upvote_ratio": 0.93, "num_comments": 7,
					"created_utc": 1700000000, "permalink": "/r/stocks/p1",
					"stickied": false}},
				{"data": {"id": "p2", "title": "pinned rules", "subreddit": "stocks",
					"created_utc": 1700000000, "stickied": true}},
				{"data": {"id": "p3", "title": "deleted author post", "author": "",
					"subreddit": "stocks", "score": 5, "num_comments": 1,
					"created_utc": 1700000100, "permalink": "/r/stocks/p3",
					"stickied": false}}
			]}
		}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	cfg := config.ClientConfig{
		BaseURL:     srv.URL,
		AuthURL:     srv.URL + "/api/v1/access_token",
		RPS:         1000,
		Burst:       1000,
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
		Timeout:     time.Second,
	}
	creds := config.Credentials{ClientID: "id", ClientSecret: "secret", UserAgent: "reddwatch-test"}
	return NewClient(cfg, creds, nil)
}

func TestFetch_NormalizesItems(t *testing.T) {
	api := &fakeAPI{}
	client := testClient(t, api.server(t))

	items, err := client.Fetch(context.Background(), "stocks", "hot", 25)
	require.NoError(t, err)
	require.Len(t, items, 2, "stickied items are skipped")

	first := items[0]
	assert.Equal(t, "p1", first.ID)
	assert.Equal(t, "stocks", first.Source)
	assert.Equal(t, "hot", first.Category)
	assert.Equal(t, "alice", first.Author)
	assert.Equal(t, 42, first.Score)
	assert.Equal(t, 7, first.Comments)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), first.CreatedUTC)
	assert.Equal(t, "https://www.reddit.com/r/stocks/p1", first.URL())

	assert.Equal(t, "[deleted]", items[1].Author, "missing author is normalized")
}

func TestFetch_ReusesToken(t *testing.T) {
	api := &fakeAPI{}
	client := testClient(t, api.server(t))

	_, err := client.Fetch(context.Background(), "stocks", "hot", 25)
	require.NoError(t, err)
	_, err = client.Fetch(context.Background(), "stocks", "hot", 25)
	require.NoError(t, err)

	assert.Equal(t, int64(1), api.tokenRequests.Load(), "session token renewed only when expired")
}

func TestFetch_AuthErrorIsFatal(t *testing.T) {
	api := &fakeAPI{tokenStatus: http.StatusUnauthorized}
	client := testClient(t, api.server(t))

	_, err := client.Fetch(context.Background(), "stocks", "hot", 25)
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, int64(1), api.tokenRequests.Load(), "auth errors are not retried")
}

func TestFetch_RateLimitedHonorsRetryAfter(t *testing.T) {
	api := &fakeAPI{listingStatus: http.StatusTooManyRequests, retryAfter: "120"}
	client := testClient(t, api.server(t))

	_, err := client.Fetch(context.Background(), "stocks", "hot", 25)
	require.Error(t, err)

	delay, ok := IsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, 120*time.Second, delay)
}

func TestFetch_RateLimitedDefaultDelay(t *testing.T) {
	api := &fakeAPI{listingStatus: http.StatusTooManyRequests}
	client := testClient(t, api.server(t))

	_, err := client.Fetch(context.Background(), "stocks", "hot", 25)
	delay, ok := IsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, defaultRetryAfter, delay)
}

func TestFetch_TransientRetriedThenSurfaced(t *testing.T) {
	api := &fakeAPI{listingStatus: http.StatusInternalServerError}
	client := testClient(t, api.server(t))

	items, err := client.Fetch(context.Background(), "stocks", "hot", 25)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.NotNil(t, items, "exhaustion returns an empty result, not nil")
	assert.Empty(t, items)
	assert.Equal(t, int64(3), api.listingRequests.Load(), "initial attempt plus two retries")
}

func TestBackoffDelay_CapAndGrowth(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	for attempt := 0; attempt < 10; attempt++ {
		d := backoffDelay(base, max, attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		// ±20% jitter either side of the cap.
		assert.LessOrEqual(t, d, max+max/5)
	}

	// First attempt stays near the base.
	d := backoffDelay(base, max, 0)
	assert.GreaterOrEqual(t, d, base-base/5)
	assert.LessOrEqual(t, d, base+base/5)
}
