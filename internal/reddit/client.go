package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/reddwatch/reddwatch/internal/config"
	"github.com/reddwatch/reddwatch/internal/model"
	"github.com/reddwatch/reddwatch/internal/telemetry"
)

const defaultRetryAfter = 60 * time.Second

// tokenSlack renews the session this long before actual expiry.
const tokenSlack = time.Minute

// Client fetches listings from the content API. It keeps no state
// between calls beyond the session token, which is renewed
// transparently when expired.
type Client struct {
	cfg     config.ClientConfig
	creds   config.Credentials
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *telemetry.Metrics

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient builds a client from configuration and credentials.
func NewClient(cfg config.ClientConfig, creds config.Credentials, metrics *telemetry.Metrics) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "reddit-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Client{
		cfg:     cfg,
		creds:   creds,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		breaker: breaker,
		metrics: metrics,
	}
}

// listing mirrors the API's listing envelope. Only the fields we
// normalize into RawItem are decoded.
type listing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				Author      string  `json:"author"`
				Subreddit   string  `json:"subreddit"`
				Score       int     `json:"score"`
				UpvoteRatio float64 `json:"upvote_ratio"`
				NumComments int     `json:"num_comments"`
				CreatedUTC  float64 `json:"created_utc"`
				Permalink   string  `json:"permalink"`
				Flair       string  `json:"link_flair_text"`
				Stickied    bool    `json:"stickied"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Fetch retrieves up to limit items from one source listing. Transient
// failures are retried with exponential backoff; on exhaustion the
// last error is returned along with an empty slice so the caller can
// decide to skip the cycle. Rate-limit and auth errors are returned
// immediately.
func (c *Client) Fetch(ctx context.Context, source, category string, limit int) ([]model.RawItem, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(c.cfg.BackoffBase, c.cfg.BackoffMax, attempt-1)
			log.Debug().
				Str("source", source).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying fetch after backoff")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &TransientError{Err: ctx.Err()}
			}
		}

		items, err := c.fetchOnce(ctx, source, category, limit)
		if err == nil {
			if c.metrics != nil {
				c.metrics.ItemsFetched.WithLabelValues(source).Add(float64(len(items)))
			}
			return items, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return []model.RawItem{}, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, source, category string, limit int) ([]model.RawItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransientError{Err: err}
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doFetch(ctx, source, category, limit)
	})
	c.observe(source, start, err)

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &TransientError{Err: err}
		}
		return nil, err
	}
	return result.([]model.RawItem), nil
}

func (c *Client) observe(source string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		switch {
		case IsAuthError(err):
			outcome = "auth"
		default:
			if _, ok := IsRateLimited(err); ok {
				outcome = "rate_limited"
			} else {
				outcome = "transient"
			}
		}
		c.metrics.FetchErrors.WithLabelValues(source, outcome).Inc()
	}
	c.metrics.FetchDuration.WithLabelValues(source, outcome).Observe(time.Since(start).Seconds())
}

func (c *Client) doFetch(ctx context.Context, source, category string, limit int) ([]model.RawItem, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/r/%s/%s?limit=%d&raw_json=1",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(source), url.PathEscape(category), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.creds.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.invalidateToken()
		return nil, &AuthError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitedError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 500:
		return nil, &TransientError{Err: fmt.Errorf("server returned %d", resp.StatusCode)}
	default:
		return nil, &TransientError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var body listing
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &TransientError{Err: fmt.Errorf("decoding listing: %w", err)}
	}

	items := make([]model.RawItem, 0, len(body.Data.Children))
	for _, child := range body.Data.Children {
		post := child.Data
		if post.Stickied {
			continue
		}
		author := post.Author
		if author == "" {
			author = "[deleted]"
		}
		items = append(items, model.RawItem{
			ID:          post.ID,
			Source:      post.Subreddit,
			Category:    category,
			Title:       post.Title,
			Body:        post.Selftext,
			Author:      author,
			Score:       post.Score,
			Comments:    post.NumComments,
			UpvoteRatio: post.UpvoteRatio,
			Flair:       post.Flair,
			Stickied:    post.Stickied,
			CreatedUTC:  time.Unix(int64(post.CreatedUTC), 0).UTC(),
			Permalink:   post.Permalink,
		})
	}
	return items, nil
}

// token returns a valid session token, renewing via the
// client-credentials grant when missing or near expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenSlack)) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", &TransientError{Err: err}
	}
	req.SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.creds.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &AuthError{Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &TransientError{Err: fmt.Errorf("token endpoint returned %d", resp.StatusCode)}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", &TransientError{Err: fmt.Errorf("decoding token: %w", err)}
	}
	if tok.AccessToken == "" {
		return "", &AuthError{Status: resp.StatusCode}
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	log.Debug().Time("expiry", c.tokenExpiry).Msg("session token renewed")
	return c.accessToken, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}
