package datafeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"whalewatch/config"
	"whalewatch/internal/domain"
)

// Client polls normalized trade records from the data API and orderbook
// depth from the CLOB API.
type Client struct {
	logger      *zap.Logger
	httpClient  *http.Client
	dataBaseURL string
	clobBaseURL string

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
		dataBaseURL: cfg.Polymarket.DataAPIURL,
		clobBaseURL: cfg.Polymarket.CLOBAPIURL,
		retries:     3,
		retryDelay:  2 * time.Second,
	}
}

// TradeRecord is a trade row as the data API returns it.
type TradeRecord struct {
	ID              string  `json:"id"`
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"` // BUY or SELL
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"`
	ConditionID     string  `json:"conditionId"`
	Asset           string  `json:"asset"`
	TransactionHash string  `json:"transactionHash"`

	Title   string `json:"title"`
	Outcome string `json:"outcome"`
}

// ToDomain converts the wire record into a normalized trade. Returns nil
// for records with no usable identity or quantity.
func (r *TradeRecord) ToDomain() *domain.Trade {
	id := r.ID
	if id == "" {
		// Some feeds omit the row id; transaction hash + asset is stable.
		if r.TransactionHash == "" {
			return nil
		}
		id = r.TransactionHash + ":" + r.Asset
	}
	if r.ProxyWallet == "" || r.Asset == "" || r.Size <= 0 || r.Price <= 0 {
		return nil
	}

	side := domain.TradeSideBuy
	if strings.EqualFold(r.Side, "SELL") {
		side = domain.TradeSideSell
	}

	return &domain.Trade{
		TradeID:   id,
		MarketID:  r.Asset,
		Wallet:    strings.ToLower(r.ProxyWallet),
		Side:      side,
		Amount:    r.Size,
		Price:     r.Price,
		Timestamp: time.Unix(r.Timestamp, 0).UTC(),
	}
}

// GetTrades fetches recent trades, optionally filtered to specific markets.
func (c *Client) GetTrades(ctx context.Context, markets []string, limit int) ([]TradeRecord, error) {
	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid data base URL: %w", err)
	}
	u.Path = "/trades"

	q := u.Query()
	if len(markets) > 0 {
		q.Set("market", strings.Join(markets, ","))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	u.RawQuery = q.Encode()

	var trades []TradeRecord
	if err := c.doGet(ctx, u.String(), &trades); err != nil {
		return nil, fmt.Errorf("get trades: %w", err)
	}

	return trades, nil
}

// BookLevel is one price level of the orderbook.
type BookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Book is the CLOB orderbook response for one token.
type Book struct {
	AssetID string      `json:"asset_id"`
	Bids    []BookLevel `json:"bids"`
	Asks    []BookLevel `json:"asks"`
}

// DepthUSD sums price×size across one side of the book.
func DepthUSD(levels []BookLevel) float64 {
	var total float64
	for _, l := range levels {
		price, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(l.Size, 64)
		if err != nil {
			continue
		}
		total += price * size
	}
	return total
}

// ToSnapshot converts the book into a depth snapshot at the given time.
func (b *Book) ToSnapshot(outcomeLabel string, at time.Time) *domain.OrderbookSnapshot {
	bid := DepthUSD(b.Bids)
	ask := DepthUSD(b.Asks)
	return &domain.OrderbookSnapshot{
		MarketID:      b.AssetID,
		OutcomeLabel:  outcomeLabel,
		Timestamp:     at,
		BidDepthUSD:   bid,
		AskDepthUSD:   ask,
		TotalDepthUSD: bid + ask,
	}
}

// GetBook fetches the current orderbook for one token.
func (c *Client) GetBook(ctx context.Context, tokenID string) (*Book, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, fmt.Errorf("tokenID is empty")
	}

	u, err := url.Parse(c.clobBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid clob base URL: %w", err)
	}
	u.Path = "/book"

	q := u.Query()
	q.Set("token_id", tokenID)
	u.RawQuery = q.Encode()

	var book Book
	if err := c.doGet(ctx, u.String(), &book); err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if book.AssetID == "" {
		book.AssetID = tokenID
	}

	return &book, nil
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
			c.logger.Warn("datafeed request failed",
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
