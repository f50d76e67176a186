// Package subgraph is a GraphQL client for the hourly token price subgraph.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"token-chart-lab/internal/observability"
)

// DefaultEndpoint is the public Uniswap v3 subgraph.
const DefaultEndpoint = "https://api.thegraph.com/subgraphs/name/uniswap/uniswap-v3"

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// ErrTransient marks failures worth retrying: network errors, 5xx and 429.
var ErrTransient = errors.New("transient provider error")

// QueryError carries the "errors" array of a GraphQL response.
// The provider rejected the request, so it is not retried.
type QueryError struct {
	Messages []string
}

func (e *QueryError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

const tokensQuery = `query Tokens($ids: [ID!]!) {
  tokens(where: {id_in: $ids}) {
    id
    name
    symbol
    totalSupply
    volumeUSD
    decimals
  }
}`

const tokenHourDataQuery = `query TokenHourData($token: String!, $after: Int!, $first: Int!) {
  tokenHourDatas(
    first: $first
    orderBy: periodStartUnix
    orderDirection: asc
    where: {token: $token, periodStartUnix_gt: $after}
  ) {
    id
    periodStartUnix
    open
    high
    low
    close
    priceUSD
    token {
      id
      symbol
    }
  }
}`

// Client issues single-attempt GraphQL requests. Retrying is the caller's job.
type Client struct {
	endpoint string
	client   *http.Client
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a subgraph client for endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchTokens returns metadata for ids in a single request.
func (c *Client) FetchTokens(ctx context.Context, ids []string) ([]Token, error) {
	var data tokensData
	err := c.do(ctx, "tokens", tokensQuery, map[string]any{"ids": ids}, &data)
	if err != nil {
		return nil, err
	}
	return data.Tokens, nil
}

// FetchTokenHourData returns up to first entries for tokenID with
// periodStartUnix strictly greater than after.
func (c *Client) FetchTokenHourData(ctx context.Context, tokenID string, after int64, first int) ([]TokenHourData, error) {
	var data tokenHourData
	vars := map[string]any{
		"token": tokenID,
		"after": after,
		"first": first,
	}
	if err := c.do(ctx, "tokenHourDatas", tokenHourDataQuery, vars, &data); err != nil {
		return nil, err
	}
	return data.TokenHourDatas, nil
}

func (c *Client) do(ctx context.Context, op, query string, vars map[string]any, out any) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordProviderRequest(op, time.Since(start).Seconds(), err)
	}()

	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: http request: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: rate limited (429)", ErrTransient)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrTransient, resp.StatusCode, truncate(respBody))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(respBody))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if len(envelope.Errors) > 0 {
		qe := &QueryError{}
		for _, e := range envelope.Errors {
			qe.Messages = append(qe.Messages, e.Message)
		}
		return qe
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return fmt.Errorf("response has no data")
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", op, err)
	}
	return nil
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
