package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/augmenthq/compete/internal/models"
)

const twitterAPIBase = "https://api.x.com/2"

// Twitter API failures the caller needs to distinguish: credential problems
// disable the source, missing users are a configuration error.
var (
	ErrTwitterUnauthorized = errors.New("twitter credentials rejected")
	ErrTwitterForbidden    = errors.New("twitter access forbidden")
	ErrTwitterUserNotFound = errors.New("twitter user not found")
)

// TwitterClient talks to the Twitter/X v2 API with a bearer token.
type TwitterClient struct {
	bearerToken string
	baseURL     string
	client      *http.Client
	logger      *slog.Logger
}

// NewTwitterClient creates a new Twitter API client.
func NewTwitterClient(bearerToken string, logger *slog.Logger) *TwitterClient {
	return &TwitterClient{
		bearerToken: bearerToken,
		baseURL:     twitterAPIBase,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

// Tweet is the subset of tweet fields the pipeline uses.
type Tweet struct {
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	AuthorID      string         `json:"author_id"`
	CreatedAt     time.Time      `json:"created_at"`
	PublicMetrics map[string]int `json:"public_metrics"`
}

type twitterUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type tweetsResponse struct {
	Data []Tweet `json:"data"`
	Meta struct {
		NextToken   string `json:"next_token"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
}

// ResolveUsername looks up the numeric user ID for a handle. The handle may
// carry a leading @.
func (tc *TwitterClient) ResolveUsername(ctx context.Context, username string) (string, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")

	var result struct {
		Data twitterUser `json:"data"`
		Errs []struct {
			Title string `json:"title"`
		} `json:"errors"`
	}
	if err := tc.get(ctx, "/users/by/username/"+url.PathEscape(username), nil, &result); err != nil {
		return "", err
	}
	if result.Data.ID == "" {
		return "", fmt.Errorf("%w: @%s", ErrTwitterUserNotFound, username)
	}
	return result.Data.ID, nil
}

// UserTweets fetches a user's timeline page by page. sinceID limits to tweets
// after that ID; startTime bounds the initial backfill window. Retweets and
// replies are excluded unless requested.
func (tc *TwitterClient) UserTweets(ctx context.Context, userID string, cfg *models.TwitterConfig, sinceID string, startTime *time.Time) ([]Tweet, error) {
	var all []Tweet
	nextToken := ""

	for {
		params := url.Values{}
		params.Set("tweet.fields", "created_at,author_id,public_metrics")
		params.Set("max_results", "100")
		var excludes []string
		if !cfg.IncludeRetweets {
			excludes = append(excludes, "retweets")
		}
		if !cfg.IncludeReplies {
			excludes = append(excludes, "replies")
		}
		if len(excludes) > 0 {
			params.Set("exclude", strings.Join(excludes, ","))
		}
		if sinceID != "" {
			params.Set("since_id", sinceID)
		} else if startTime != nil {
			params.Set("start_time", startTime.UTC().Format(time.RFC3339))
		}
		if nextToken != "" {
			params.Set("pagination_token", nextToken)
		}

		var page tweetsResponse
		if err := tc.get(ctx, "/users/"+url.PathEscape(userID)+"/tweets", params, &page); err != nil {
			return nil, err
		}

		all = append(all, page.Data...)
		if page.Meta.NextToken == "" {
			break
		}
		nextToken = page.Meta.NextToken
	}

	return all, nil
}

func (tc *TwitterClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := tc.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tc.bearerToken)

	resp, err := tc.client.Do(req)
	if err != nil {
		return NewRetryableError(fmt.Errorf("twitter request failed: %w", err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return ErrTwitterUnauthorized
	case http.StatusForbidden:
		return ErrTwitterForbidden
	case http.StatusNotFound:
		return ErrTwitterUserNotFound
	case http.StatusTooManyRequests:
		return NewRetryableErrorWithDelay(
			errors.New("twitter rate limit exceeded"),
			rateLimitDelay(resp.Header.Get("x-rate-limit-reset")),
		)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("twitter API error: %d - %s", resp.StatusCode, string(body))
		if resp.StatusCode >= 500 {
			return NewRetryableError(err)
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode twitter response: %w", err)
	}
	return nil
}

// rateLimitDelay converts the x-rate-limit-reset epoch header into a wait
// duration, defaulting to a minute when the header is missing or in the past.
func rateLimitDelay(resetHeader string) time.Duration {
	const fallback = time.Minute
	epoch, err := strconv.ParseInt(resetHeader, 10, 64)
	if err != nil {
		return fallback
	}
	delay := time.Until(time.Unix(epoch, 0))
	if delay <= 0 || delay > 15*time.Minute {
		return fallback
	}
	return delay
}

// TwitterFetcher retrieves tweets from tracked accounts.
type TwitterFetcher struct {
	client *TwitterClient
	logger *slog.Logger
}

// NewTwitterFetcher creates a new Twitter fetcher.
func NewTwitterFetcher(client *TwitterClient, logger *slog.Logger) *TwitterFetcher {
	return &TwitterFetcher{client: client, logger: logger}
}

// SourceType returns the source type this fetcher handles.
func (f *TwitterFetcher) SourceType() models.SourceType {
	return models.SourceTypeTwitter
}

// Fetch retrieves new tweets for a source. The first fetch backfills the
// configured history window; later fetches resume from the stored tweet ID.
func (f *TwitterFetcher) Fetch(ctx context.Context, source *models.Source) (*FetchResult, error) {
	cfg := source.Twitter
	if cfg == nil {
		return nil, fmt.Errorf("source %s has no twitter configuration", source.ID)
	}

	userID := cfg.UserID
	if userID == "" {
		var err error
		userID, err = f.client.ResolveUsername(ctx, cfg.Username)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve @%s: %w", cfg.Username, err)
		}
	}

	// A pending backfill takes the full history window even when a cursor
	// exists, so resetting the flag re-reads the window.
	var startTime *time.Time
	sinceID := cfg.LastTweetID
	if !cfg.BackfillCompleted {
		days := cfg.InitialBackfillDays
		if days <= 0 {
			days = models.DefaultBackfillDays
		}
		t := time.Now().UTC().AddDate(0, 0, -days)
		startTime = &t
		sinceID = ""
		f.logger.Info("backfilling twitter source",
			"username", cfg.Username, "days", days)
	}

	tweets, err := f.client.UserTweets(ctx, userID, cfg, sinceID, startTime)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := &FetchResult{FetchedAt: now, BackfillDone: startTime != nil}
	for _, tweet := range tweets {
		result.Items = append(result.Items, tweetToItem(source, cfg.Username, tweet, now))
		// Tweet IDs are chronological; the newest one becomes the cursor.
		// Compare as numbers: longer ID wins, then lexicographic.
		if len(tweet.ID) > len(result.NewLastTweetID) ||
			(len(tweet.ID) == len(result.NewLastTweetID) && tweet.ID > result.NewLastTweetID) {
			result.NewLastTweetID = tweet.ID
		}
	}
	return result, nil
}

func tweetToItem(source *models.Source, username string, tweet Tweet, now time.Time) models.Item {
	published := tweet.CreatedAt
	item := models.Item{
		ID:          uuid.NewString(),
		SourceID:    source.ID,
		GUID:        tweet.ID,
		URL:         fmt.Sprintf("https://x.com/%s/status/%s", username, tweet.ID),
		Author:      "@" + username,
		Content:     tweet.Text,
		PublishedAt: &published,
		CreatedAt:   now,
	}
	if len(tweet.PublicMetrics) > 0 {
		metrics := make(map[string]interface{}, len(tweet.PublicMetrics))
		for k, v := range tweet.PublicMetrics {
			metrics[k] = v
		}
		item.RawMetadata = map[string]interface{}{
			"author_id":      tweet.AuthorID,
			"public_metrics": metrics,
		}
	}
	return item
}
