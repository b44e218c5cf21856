// Package upstream is a client for the API-Football v3 fixtures endpoints used by
// the pollers and the prematch consumer.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/matchcast/predictor/internal/models"
)

const (
	DefaultBaseURL = "https://v3.football.api-sports.io"

	apiKeyHeader = "x-apisports-key"

	defaultRateLimit = 5.0 // requests per second
	defaultBurst     = 5
	defaultTimeout   = 25 * time.Second
)

// Client is an API-Football client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit sets custom rate limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a client authenticated with apiKey.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// LiveFixtures returns every fixture the provider currently reports as live.
func (c *Client) LiveFixtures(ctx context.Context) ([]FixtureItem, error) {
	var env envelope[FixtureItem]
	if err := c.get(ctx, "/fixtures", url.Values{"live": {"all"}}, &env); err != nil {
		return nil, err
	}
	if err := env.apiError(); err != nil {
		return nil, err
	}
	return env.Response, nil
}

// maxPages bounds a paged listing.
const maxPages = 50

// FixturesBySeason returns the full fixture list of a league season, following
// the provider's paging when it reports more than one page.
func (c *Client) FixturesBySeason(ctx context.Context, leagueID int64, season int) ([]FixtureItem, error) {
	params := url.Values{}
	params.Set("league", strconv.FormatInt(leagueID, 10))
	params.Set("season", strconv.Itoa(season))

	var items []FixtureItem
	for page := 1; page <= maxPages; page++ {
		if page > 1 {
			params.Set("page", strconv.Itoa(page))
		}

		var env envelope[FixtureItem]
		if err := c.get(ctx, "/fixtures", params, &env); err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		if err := env.apiError(); err != nil {
			return nil, err
		}
		items = append(items, env.Response...)

		if env.Paging == nil || env.Paging.Total <= page {
			break
		}
	}
	return items, nil
}

// FixtureStatistics returns the per-team statistics blocks of a fixture.
func (c *Client) FixtureStatistics(ctx context.Context, fixtureID int64) ([]StatisticsItem, error) {
	var env envelope[StatisticsItem]
	if err := c.get(ctx, "/fixtures/statistics", url.Values{"fixture": {strconv.FormatInt(fixtureID, 10)}}, &env); err != nil {
		return nil, err
	}
	if err := env.apiError(); err != nil {
		return nil, err
	}
	return env.Response, nil
}

// MatchStats fetches a fixture's statistics and maps them onto the home and away
// sides by team name. A side whose name does not match is left empty.
func (c *Client) MatchStats(ctx context.Context, fixtureID int64, homeTeam, awayTeam string) (models.MatchStats, error) {
	items, err := c.FixtureStatistics(ctx, fixtureID)
	if err != nil {
		return models.MatchStats{}, err
	}
	return ParseMatchStats(items, homeTeam, awayTeam), nil
}

// HeadToHead returns up to last past meetings between two teams.
func (c *Client) HeadToHead(ctx context.Context, teamA, teamB int64, last int) ([]models.H2HMeeting, error) {
	params := url.Values{}
	params.Set("h2h", fmt.Sprintf("%d-%d", teamA, teamB))
	if last > 0 {
		params.Set("last", strconv.Itoa(last))
	}

	var env envelope[FixtureItem]
	if err := c.get(ctx, "/fixtures/headtohead", params, &env); err != nil {
		return nil, err
	}
	if err := env.apiError(); err != nil {
		return nil, err
	}

	meetings := make([]models.H2HMeeting, 0, len(env.Response))
	for _, it := range env.Response {
		meetings = append(meetings, it.Meeting())
	}
	return meetings, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("api error %d on %s: %s", resp.StatusCode, path, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
