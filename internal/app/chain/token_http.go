package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/FeederNet/oracle_layer/pkg/logger"
)

// HTTPTokenClient talks to the token contract gateway over HTTP.
type HTTPTokenClient struct {
	client   *http.Client
	endpoint *url.URL
	apiKey   string
	log      *logger.Logger
}

var _ TokenClient = (*HTTPTokenClient)(nil)

func NewHTTPTokenClient(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*HTTPTokenClient, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.NewDefault("token-client")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse token endpoint: %w", err)
	}
	return &HTTPTokenClient{client: client, endpoint: u, apiKey: apiKey, log: log}, nil
}

type transferRequest struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type transferResponse struct {
	Confirmed bool   `json:"confirmed"`
	Error     string `json:"error,omitempty"`
}

type balanceResponse struct {
	Balance int64  `json:"balance"`
	Error   string `json:"error,omitempty"`
}

func (c *HTTPTokenClient) BalanceOf(ctx context.Context, address string) (int64, error) {
	u := c.endpoint.JoinPath("balance")
	q := u.Query()
	q.Set("address", address)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build balance request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("balance query returned status %d", resp.StatusCode)
	}
	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode balance response: %w", err)
	}
	if body.Error != "" {
		return 0, fmt.Errorf("balance query failed: %s", body.Error)
	}
	return body.Balance, nil
}

func (c *HTTPTokenClient) Transfer(ctx context.Context, to string, amount int64) (bool, error) {
	return c.post(ctx, "transfer", transferRequest{To: to, Amount: amount})
}

func (c *HTTPTokenClient) TransferFrom(ctx context.Context, from, to string, amount int64) (bool, error) {
	return c.post(ctx, "transfer_from", transferRequest{From: from, To: to, Amount: amount})
}

func (c *HTTPTokenClient) post(ctx context.Context, path string, payload transferRequest) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode %s request: %w", path, err)
	}

	u := c.endpoint.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(raw))
	if err != nil {
		return false, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	var body transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode %s response: %w", path, err)
	}
	if body.Error != "" {
		c.log.WithField("path", path).Warnf("token gateway declined transfer: %s", body.Error)
	}
	return body.Confirmed, nil
}

func (c *HTTPTokenClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
