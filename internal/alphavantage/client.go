// Package alphavantage is a quote.Source backed by the Alpha Vantage
// query API.
package alphavantage

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

	"github.com/shopspring/decimal"

	"github.com/papertrade/simulator/internal/model"
	"github.com/papertrade/simulator/internal/quote"
)

// DefaultBaseURL is the public query endpoint.
const DefaultBaseURL = "https://www.alphavantage.co/query"

var _ quote.Source = (*Client)(nil)

// Client issues one request per call; there is no retry. Every request is
// bounded by the client timeout and reported as quote.ErrTransport when it
// expires.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a client. An empty baseURL means DefaultBaseURL.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// envelope carries the fields Alpha Vantage uses to report failures with
// a 200 status.
type envelope struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

// get performs the query and returns the body once the failure envelope
// has been checked.
func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	params.Set("apikey", c.apiKey)
	addr := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("alphavantage: %w: %w", quote.ErrTransport, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alphavantage: %w: %w", quote.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("alphavantage: %s: %w", resp.Status, quote.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alphavantage: %w: GET %s: %s", quote.ErrTransport, params.Get("function"), resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("alphavantage: %w: %w", quote.ErrTransport, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		// Search and overview bodies are objects too, so a decode failure
		// here means the payload is not JSON at all.
		return nil, fmt.Errorf("alphavantage: %w: %w", quote.ErrTransport, err)
	}
	switch {
	case env.Note != "":
		return nil, fmt.Errorf("alphavantage: %s: %w", env.Note, quote.ErrRateLimited)
	case env.Information != "":
		return nil, fmt.Errorf("alphavantage: %s: %w", env.Information, quote.ErrRateLimited)
	case env.ErrorMessage != "":
		return nil, fmt.Errorf("alphavantage: %s: %w", env.ErrorMessage, quote.ErrNotFound)
	}
	return body, nil
}

type globalQuoteResponse struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		Volume        string `json:"06. volume"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

// Quote fetches GLOBAL_QUOTE for symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	body, err := c.get(ctx, url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {symbol}})
	if err != nil {
		return nil, err
	}

	var r globalQuoteResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("alphavantage: %w: decode quote: %w", quote.ErrTransport, err)
	}
	gq := r.GlobalQuote
	if gq.Price == "" {
		return nil, fmt.Errorf("alphavantage: no quote for %s: %w", symbol, quote.ErrNotFound)
	}

	q := &model.Quote{Symbol: symbol}
	if q.Price, err = decimal.NewFromString(gq.Price); err != nil {
		return nil, fmt.Errorf("alphavantage: %w: price %q: %w", quote.ErrTransport, gq.Price, err)
	}
	// Secondary fields are informational; a malformed one is left at zero.
	q.Change, _ = decimal.NewFromString(gq.Change)
	q.ChangePercent, _ = decimal.NewFromString(strings.TrimSuffix(gq.ChangePercent, "%"))
	q.Volume, _ = strconv.ParseInt(gq.Volume, 10, 64)
	return q, nil
}

type overviewResponse struct {
	Symbol               string `json:"Symbol"`
	Name                 string `json:"Name"`
	Sector               string `json:"Sector"`
	Industry             string `json:"Industry"`
	MarketCapitalization string `json:"MarketCapitalization"`
	PERatio              string `json:"PERatio"`
	Description          string `json:"Description"`
}

// Overview fetches OVERVIEW for symbol.
func (c *Client) Overview(ctx context.Context, symbol string) (*model.Overview, error) {
	body, err := c.get(ctx, url.Values{"function": {"OVERVIEW"}, "symbol": {symbol}})
	if err != nil {
		return nil, err
	}

	var r overviewResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("alphavantage: %w: decode overview: %w", quote.ErrTransport, err)
	}
	if r.Name == "" {
		return nil, fmt.Errorf("alphavantage: no overview for %s: %w", symbol, quote.ErrNotFound)
	}
	return &model.Overview{
		Symbol:      symbol,
		Name:        r.Name,
		Sector:      r.Sector,
		Industry:    r.Industry,
		MarketCap:   r.MarketCapitalization,
		PERatio:     r.PERatio,
		Description: r.Description,
	}, nil
}

type searchResponse struct {
	BestMatches []struct {
		Symbol string `json:"1. symbol"`
		Name   string `json:"2. name"`
		Type   string `json:"3. type"`
		Region string `json:"4. region"`
	} `json:"bestMatches"`
}

// Search runs SYMBOL_SEARCH. No matches is an empty slice, not an error.
func (c *Client) Search(ctx context.Context, keywords string) ([]model.SearchMatch, error) {
	body, err := c.get(ctx, url.Values{"function": {"SYMBOL_SEARCH"}, "keywords": {keywords}})
	if err != nil {
		return nil, err
	}

	var r searchResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("alphavantage: %w: decode search: %w", quote.ErrTransport, err)
	}
	matches := make([]model.SearchMatch, 0, len(r.BestMatches))
	for _, m := range r.BestMatches {
		matches = append(matches, model.SearchMatch{
			Symbol: m.Symbol,
			Name:   m.Name,
			Type:   m.Type,
			Region: m.Region,
		})
	}
	return matches, nil
}
