package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"optionwatch/internal/chain"
)

const (
	optionChainPath = "/api/option-chain-indices"
	primePath       = "/option-chain"
	maxPayloadBytes = 16 << 20
)

// NSEOptions parameterise the NSE option-chain client.
type NSEOptions struct {
	BaseURL         string
	UserAgent       string
	Timeout         time.Duration
	RatePerSecond   float64
	Burst           int
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// NSE fetches index option chains from the NSE public API. The API only
// answers clients holding the cookies set by the option-chain page, so the
// session is primed once and re-primed after an authorisation failure.
type NSE struct {
	opts    NSEOptions
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger

	mu     sync.Mutex
	primed bool
}

// NewNSE constructs an NSE client.
func NewNSE(opts NSEOptions, logger zerolog.Logger) *NSE {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = time.Minute
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.nseindia.com"
	}

	jar, _ := cookiejar.New(nil)
	log := logger.With().Str("component", "nse_fetcher").Logger()

	settings := gobreaker.Settings{
		Name:    "nse",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}

	return &NSE{
		opts:    opts,
		baseURL: baseURL,
		client:  &http.Client{Timeout: opts.Timeout, Jar: jar},
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  log,
	}
}

// FetchChain returns the raw option-chain JSON for symbol.
func (n *NSE) FetchChain(ctx context.Context, symbol string) (json.RawMessage, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrDataSourceUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, n.opts.Timeout)
	defer cancel()

	result, err := n.breaker.Execute(func() (interface{}, error) {
		return n.fetch(ctx, symbol)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %v", ErrDataSourceUnavailable, symbol, err)
		}
		return nil, err
	}
	return result.(json.RawMessage), nil
}

// ListExpiries returns the symbol's expiry dates in ascending order.
func (n *NSE) ListExpiries(ctx context.Context, symbol string) ([]time.Time, error) {
	payload, err := n.FetchChain(ctx, symbol)
	if err != nil {
		return nil, err
	}
	raw, err := chain.DecodePayload(payload)
	if err != nil {
		return nil, err
	}
	return chain.ParseExpiries(raw.ExpiryDates), nil
}

func (n *NSE) fetch(ctx context.Context, symbol string) (json.RawMessage, error) {
	if err := n.prime(ctx); err != nil {
		return nil, fmt.Errorf("%w: prime session: %v", ErrDataSourceUnavailable, err)
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrDataSourceUnavailable, err)
	}

	endpoint := n.baseURL + optionChainPath + "?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataSourceUnavailable, err)
	}
	n.setHeaders(req)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDataSourceUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s payload: %v", ErrDataSourceUnavailable, symbol, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		n.mu.Lock()
		n.primed = false
		n.mu.Unlock()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", ErrDataSourceUnavailable, symbol, resp.StatusCode)
	}
	if len(strings.TrimSpace(string(body))) == 0 || string(body) == "{}" {
		return nil, fmt.Errorf("%w: %s: empty payload", ErrDataSourceUnavailable, symbol)
	}

	n.logger.Debug().Str("symbol", symbol).Int("bytes", len(body)).Msg("option chain fetched")
	return json.RawMessage(body), nil
}

func (n *NSE) prime(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.primed {
		return nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+primePath, nil)
	if err != nil {
		return err
	}
	n.setHeaders(req)
	req.Header.Set("Accept", "text/html")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	n.primed = true
	n.logger.Debug().Msg("session primed")
	return nil
}

func (n *NSE) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", n.opts.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", n.baseURL+primePath)
}

var (
	_ ChainFetcher = (*NSE)(nil)
	_ ExpiryLister = (*NSE)(nil)
)
