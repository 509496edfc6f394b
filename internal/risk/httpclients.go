package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// httpClientTimeout bounds every collaborator HTTP round trip. Exceeding it
// surfaces as a failure to the caller's circuit breaker the same way a
// connection refusal would.
const httpClientTimeout = 2 * time.Second

// httpAccountService is a thin JSON-over-HTTP AccountService client,
// grounded on the teacher's BinanceProvider HTTP client shape
// (internal/marketdata/external/binance.go): a base URL, a timeout-bound
// http.Client, and one decode per call.
type httpAccountService struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewHTTPAccountService builds an AccountService that calls an external
// account ledger over HTTP at baseURL.
func NewHTTPAccountService(baseURL string, log *zap.Logger) AccountService {
	return &httpAccountService{baseURL: baseURL, client: &http.Client{Timeout: httpClientTimeout}, log: log}
}

func (s *httpAccountService) GetAccountSnapshot(ctx context.Context, accountID string) (*AccountSnapshot, error) {
	var out AccountSnapshot
	if err := s.getJSON(ctx, fmt.Sprintf("/accounts/%s/snapshot", url.PathEscape(accountID)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *httpAccountService) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collaborator request to %s failed: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// httpPositionService is a thin JSON-over-HTTP PositionService client.
type httpPositionService struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewHTTPPositionService builds a PositionService that calls an external
// position book over HTTP at baseURL.
func NewHTTPPositionService(baseURL string, log *zap.Logger) PositionService {
	return &httpPositionService{baseURL: baseURL, client: &http.Client{Timeout: httpClientTimeout}, log: log}
}

func (s *httpPositionService) GetPositions(ctx context.Context, accountID string) (map[Symbol]Position, error) {
	var out map[Symbol]Position
	if err := s.getJSON(ctx, fmt.Sprintf("/accounts/%s/positions", url.PathEscape(accountID)), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *httpPositionService) ListAccountsWithOpenPositions(ctx context.Context) ([]string, error) {
	var out []string
	if err := s.getJSON(ctx, "/accounts/with-open-positions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *httpPositionService) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collaborator request to %s failed: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// httpMarketDataService is a thin JSON-over-HTTP MarketDataService client.
type httpMarketDataService struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewHTTPMarketDataService builds a MarketDataService backed by an external
// reference-price feed reachable over HTTP at baseURL.
func NewHTTPMarketDataService(baseURL string, log *zap.Logger) MarketDataService {
	return &httpMarketDataService{baseURL: baseURL, client: &http.Client{Timeout: httpClientTimeout}, log: log}
}

func (s *httpMarketDataService) GetReferencePrice(ctx context.Context, symbol Symbol) (float64, error) {
	var out struct {
		Price float64 `json:"price"`
	}
	path := fmt.Sprintf("/prices/%s", url.PathEscape(string(symbol)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("collaborator request to %s failed: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Price, nil
}

// httpVolatilityService is a thin JSON-over-HTTP VolatilityService client.
type httpVolatilityService struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewHTTPVolatilityService builds a VolatilityService backed by an external
// analytics feed reachable over HTTP at baseURL.
func NewHTTPVolatilityService(baseURL string, log *zap.Logger) VolatilityService {
	return &httpVolatilityService{baseURL: baseURL, client: &http.Client{Timeout: httpClientTimeout}, log: log}
}

func (s *httpVolatilityService) GetHistoricalVolatility(ctx context.Context, symbol Symbol) (float64, error) {
	var out struct {
		Sigma float64 `json:"sigma_30d"`
	}
	if err := s.getJSON(ctx, fmt.Sprintf("/volatility/%s", url.PathEscape(string(symbol))), &out); err != nil {
		return 0, err
	}
	return out.Sigma, nil
}

func (s *httpVolatilityService) GetMarketCap(ctx context.Context, symbol Symbol) (float64, error) {
	var out struct {
		MarketCapUSD float64 `json:"market_cap_usd"`
	}
	if err := s.getJSON(ctx, fmt.Sprintf("/market-cap/%s", url.PathEscape(string(symbol))), &out); err != nil {
		return 0, err
	}
	return out.MarketCapUSD, nil
}

func (s *httpVolatilityService) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collaborator request to %s failed: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
