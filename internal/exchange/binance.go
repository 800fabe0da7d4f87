// Package exchange implements the Binance spot REST client behind the
// model.ExchangeClient port. Symbols are accepted in BASE/QUOTE form and
// converted to Binance's concatenated form on the wire.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"paperbot/internal/model"
)

// Config holds Binance credentials and connection options.
type Config struct {
	APIKey    string
	APISecret string
	// Testnet switches to the sandbox base URL (testnet.binance.vision).
	Testnet bool
	// BaseURL overrides the derived base URL; used in tests.
	BaseURL    string
	RecvWindow int64 // ms
}

// Client is a Binance spot REST client.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu      sync.Mutex
	markets map[string]model.Market
}

var _ model.ExchangeClient = (*Client)(nil)

// New builds a client. The rate limiter stays well inside Binance's
// 1200 request-weight/min budget for spot.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.binance.com"
		if cfg.Testnet {
			base = "https://testnet.binance.vision"
		}
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	return &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
	}
}

// wireSymbol converts "BTC/USDT" to "BTCUSDT".
func wireSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// FetchOHLCV returns up to limit candles in chronological order.
func (c *Client) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	params := url.Values{}
	params.Set("symbol", wireSymbol(symbol))
	params.Set("interval", timeframe)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.doPublic(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	candles := make([]model.Candle, 0, len(raw))
	for _, item := range raw {
		// Binance returns 12 fields per kline
		if len(item) < 6 {
			continue
		}
		candles = append(candles, model.Candle{
			TS:     toInt64(item[0]),
			Open:   toFloat(item[1]),
			High:   toFloat(item[2]),
			Low:    toFloat(item[3]),
			Close:  toFloat(item[4]),
			Volume: toFloat(item[5]),
		})
	}
	return candles, nil
}

// FetchTicker returns the 24h ticker; Last is the last trade price and
// Close the previous close.
func (c *Client) FetchTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", wireSymbol(symbol))

	body, err := c.doPublic(ctx, "/api/v3/ticker/24hr", params)
	if err != nil {
		return model.Ticker{}, err
	}

	var resp struct {
		LastPrice      string `json:"lastPrice"`
		PrevClosePrice string `json:"prevClosePrice"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.Ticker{}, fmt.Errorf("decode ticker: %w", err)
	}

	last, _ := strconv.ParseFloat(resp.LastPrice, 64)
	prevClose, _ := strconv.ParseFloat(resp.PrevClosePrice, 64)
	return model.Ticker{Symbol: symbol, Last: last, Close: prevClose}, nil
}

// FetchFreeBalance returns free balances per asset from the account endpoint.
func (c *Client) FetchFreeBalance(ctx context.Context) (map[string]float64, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, errors.New("binance: API key/secret required")
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode account info: %w", err)
	}

	out := make(map[string]float64, len(resp.Balances))
	for _, b := range resp.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		out[b.Asset] = free
	}
	return out, nil
}

// CreateMarketBuyOrder submits a market buy for qty of the base asset.
func (c *Client) CreateMarketBuyOrder(ctx context.Context, symbol string, qty float64) (model.OrderRecord, error) {
	return c.createMarketOrder(ctx, symbol, "BUY", qty)
}

// CreateMarketSellOrder submits a market sell for qty of the base asset.
func (c *Client) CreateMarketSellOrder(ctx context.Context, symbol string, qty float64) (model.OrderRecord, error) {
	return c.createMarketOrder(ctx, symbol, "SELL", qty)
}

func (c *Client) createMarketOrder(ctx context.Context, symbol, side string, qty float64) (model.OrderRecord, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return model.OrderRecord{}, errors.New("binance: API key/secret required")
	}
	params := url.Values{}
	params.Set("symbol", wireSymbol(symbol))
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", formatFloat(qty))
	params.Set("newOrderRespType", "FULL")

	body, err := c.doSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return model.OrderRecord{}, err
	}

	var resp struct {
		OrderID      int64  `json:"orderId"`
		Status       string `json:"status"`
		OrigQty      string `json:"origQty"`
		ExecutedQty  string `json:"executedQty"`
		CumQuoteQty  string `json:"cummulativeQuoteQty"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.OrderRecord{}, fmt.Errorf("decode order response: %w", err)
	}

	origQty, _ := strconv.ParseFloat(resp.OrigQty, 64)
	filled, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	quoteQty, _ := strconv.ParseFloat(resp.CumQuoteQty, 64)

	rec := model.OrderRecord{
		ID:     strconv.FormatInt(resp.OrderID, 10),
		Symbol: symbol,
		Side:   strings.ToLower(side),
		Status: resp.Status,
		Qty:    origQty,
		Filled: filled,
	}
	if filled > 0 {
		rec.Price = quoteQty / filled
	}
	return rec, nil
}

// LoadMarkets fetches exchange metadata once and caches it. The LOT_SIZE
// filter's stepSize becomes the market's quantity step.
func (c *Client) LoadMarkets(ctx context.Context) (map[string]model.Market, error) {
	c.mu.Lock()
	if c.markets != nil {
		cached := c.markets
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	body, err := c.doPublic(ctx, "/api/v3/exchangeInfo", url.Values{})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
			Filters    []struct {
				FilterType string `json:"filterType"`
				StepSize   string `json:"stepSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode exchange info: %w", err)
	}

	markets := make(map[string]model.Market, len(resp.Symbols))
	for _, s := range resp.Symbols {
		m := model.Market{
			Symbol: s.BaseAsset + "/" + s.QuoteAsset,
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
		}
		for _, f := range s.Filters {
			if f.FilterType == "LOT_SIZE" {
				m.StepSize, _ = strconv.ParseFloat(f.StepSize, 64)
			}
		}
		markets[m.Symbol] = m
	}

	c.mu.Lock()
	c.markets = markets
	c.mu.Unlock()
	return markets, nil
}

func (c *Client) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, path)
}

// doSigned signs the query and performs the request with the API key header.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	params.Set("signature", sign(params.Encode(), c.cfg.APISecret))

	var (
		req *http.Request
		err error
	)
	encoded := params.Encode()
	endpoint := c.baseURL + path
	switch method {
	case http.MethodGet, http.MethodDelete:
		// Binance expects signed params in the query string for GET/DELETE.
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	return c.do(req, path)
}

func (c *Client) do(req *http.Request, path string) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance %s: %w", path, err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("binance %s %s: status %d: %s", req.Method, path, res.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case json.Number:
		i, _ := t.Int64()
		return i
	default:
		return 0
	}
}
