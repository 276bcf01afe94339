package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"whalewatch/config"
)

// Client fetches market metadata from the Gamma API.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string

	retries    int
	retryDelay time.Duration
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		logger: logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:    cfg.Polymarket.GammaAPIURL,
		retries:    3,
		retryDelay: 2 * time.Second,
	}
}

// ---- Gamma API types (minimal; add fields as you need) ----

type Market struct {
	ID           string          `json:"id"`
	Slug         string          `json:"slug"`
	Question     string          `json:"question"`
	ConditionID  string          `json:"conditionId"`
	ClobTokenIDs json.RawMessage `json:"clobTokenIds"`

	Outcomes      json.RawMessage `json:"outcomes"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`

	Category   string  `json:"category"`
	Volume24hr float64 `json:"volume24hr"`
	VolumeNum  float64 `json:"volumeNum"`

	Active bool `json:"active"`
	Closed bool `json:"closed"`

	StartDate  string `json:"startDate"`
	ClosedTime string `json:"closedTime,omitempty"`

	WinningOutcome string `json:"winningOutcome,omitempty"`
}

// GetOutcomes parses the Outcomes field and returns the outcome names.
func (m *Market) GetOutcomes() []string {
	return parseStringArray(m.Outcomes)
}

// GetTokenIDs parses the ClobTokenIDs field and returns the token IDs.
func (m *Market) GetTokenIDs() []string {
	return parseStringArray(m.ClobTokenIDs)
}

// GetOutcomePrices parses the OutcomePrices field and returns prices.
func (m *Market) GetOutcomePrices() []float64 {
	strs := parseStringArray(m.OutcomePrices)
	if strs == nil {
		var prices []float64
		if err := json.Unmarshal(m.OutcomePrices, &prices); err == nil {
			return prices
		}
		return nil
	}
	prices := make([]float64, len(strs))
	for i, s := range strs {
		fmt.Sscanf(s, "%f", &prices[i])
	}
	return prices
}

// GetWinningOutcome determines which outcome won based on prices.
// For resolved markets, the winning outcome has price ~1.0.
// Returns the outcome name, or empty string if not determined.
func (m *Market) GetWinningOutcome() string {
	if !m.Closed {
		return ""
	}

	if m.WinningOutcome != "" {
		return m.WinningOutcome
	}

	prices := m.GetOutcomePrices()
	outcomes := m.GetOutcomes()
	if len(prices) == 0 || len(prices) != len(outcomes) {
		return ""
	}

	for i, p := range prices {
		if p >= 0.95 {
			return outcomes[i]
		}
	}
	return ""
}

// GetStartTime parses StartDate. Returns zero time when absent or invalid.
func (m *Market) GetStartTime() time.Time {
	return parseGammaTime(m.StartDate)
}

// GetClosedTime parses ClosedTime. Returns zero time when absent or invalid.
func (m *Market) GetClosedTime() time.Time {
	return parseGammaTime(m.ClosedTime)
}

func parseGammaTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05-07", "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// parseStringArray tolerates the Gamma API's inconsistent encodings:
// a direct array, a JSON string containing an array, or an array whose
// single element is itself an encoded array.
func parseStringArray(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var direct []string
	if err := json.Unmarshal(raw, &direct); err == nil && len(direct) > 0 {
		if len(direct) == 1 && len(direct[0]) > 0 && direct[0][0] == '[' {
			var nested []string
			if err := json.Unmarshal([]byte(direct[0]), &nested); err == nil && len(nested) > 0 {
				return nested
			}
		}
		return direct
	}

	var jsonStr string
	if err := json.Unmarshal(raw, &jsonStr); err == nil && jsonStr != "" {
		var inner []string
		if err := json.Unmarshal([]byte(jsonStr), &inner); err == nil && len(inner) > 0 {
			return inner
		}
	}

	return nil
}

// GetMarketByTokenID fetches the market whose outcome token matches tokenID.
func (c *Client) GetMarketByTokenID(ctx context.Context, tokenID string) (*Market, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, fmt.Errorf("tokenID is empty")
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gamma base URL: %w", err)
	}
	u.Path = "/markets"

	q := u.Query()
	q.Set("clob_token_ids", tokenID)
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	var markets []Market
	if err := c.doGet(ctx, u.String(), &markets); err != nil {
		return nil, fmt.Errorf("get market by token id: %w", err)
	}

	if len(markets) == 0 {
		return nil, fmt.Errorf("market not found for token %s", tokenID)
	}

	return &markets[0], nil
}

// GetTopMarketsByVolume fetches the top active markets sorted by 24-hour
// trading volume.
func (c *Client) GetTopMarketsByVolume(ctx context.Context, limit int) ([]Market, error) {
	if limit <= 0 {
		limit = 20
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gamma base URL: %w", err)
	}
	u.Path = "/markets"

	q := u.Query()
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("order", "volume24hr")
	q.Set("ascending", "false")
	q.Set("active", "true")
	q.Set("closed", "false")
	u.RawQuery = q.Encode()

	var markets []Market
	if err := c.doGet(ctx, u.String(), &markets); err != nil {
		return nil, fmt.Errorf("get top markets: %w", err)
	}
	return markets, nil
}

// GetClosedMarkets fetches recently closed markets for settlement tracking.
func (c *Client) GetClosedMarkets(ctx context.Context, limit int) ([]Market, error) {
	if limit <= 0 {
		limit = 100
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gamma base URL: %w", err)
	}
	u.Path = "/markets"

	q := u.Query()
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("closed", "true")
	q.Set("order", "closedTime")
	q.Set("ascending", "false")
	u.RawQuery = q.Encode()

	var markets []Market
	if err := c.doGet(ctx, u.String(), &markets); err != nil {
		return nil, fmt.Errorf("get closed markets: %w", err)
	}
	return markets, nil
}

// doGet performs a GET request with bounded retries and decodes the JSON
// response.
func (c *Client) doGet(ctx context.Context, url string, dest any) error {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		if err := c.doGetOnce(ctx, url, dest); err != nil {
			lastErr = err
			c.logger.Warn("gamma request failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		return nil
	}
	return lastErr
}

func (c *Client) doGetOnce(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	return nil
}
