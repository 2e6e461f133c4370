package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"theater-site/internal/status"
	"theater-site/utils"
)

type Config struct {
	BaseURL       string
	AccessToken   string
	WebhookSecret string
	Timeout       time.Duration

	// RequireSignature rejects webhooks when WebhookSecret is empty.
	RequireSignature bool
}

type Client struct {
	// baseURL is the MercadoPago API root, e.g. https://api.mercadopago.com.
	baseURL string

	// accessToken authenticates every API call as a bearer token.
	accessToken string

	// webhookSecret signs notification deliveries.
	webhookSecret string

	requireSignature bool

	// cb stops hammering the API while it is failing.
	cb *utils.CircuitBreaker

	hc *http.Client
}

func New(c Config) *Client {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.mercadopago.com"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:          strings.TrimRight(c.BaseURL, "/"),
		accessToken:      c.AccessToken,
		webhookSecret:    c.WebhookSecret,
		requireSignature: c.RequireSignature,
		cb:               utils.NewCircuitBreaker("mercadopago"),
		hc: &http.Client{
			Timeout: c.Timeout,
		},
	}
}

// apiError is the error body returned by the API on non-2xx responses.
type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
}

// do sends one request and decodes a 2xx JSON reply into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any, headers map[string]string) error {
	return c.cb.Execute(ctx, func(ctx context.Context) error {
		var body io.Reader
		if in != nil {
			data, err := json.Marshal(in)
			if err != nil {
				return fmt.Errorf("mercadopago: json.Marshal: %w", err)
			}
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("mercadopago: http.NewReq: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("Accept", "application/json")
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("%w: mercadopago: http.Do: %v", status.ErrProviderFailure, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			var reply apiError
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			if json.Unmarshal(raw, &reply) != nil || reply.Message == "" {
				reply.Message = strings.TrimSpace(string(raw))
			}
			return fmt.Errorf("%w: mercadopago: %s %s: status %d: %s",
				status.ErrProviderFailure, method, path, resp.StatusCode, reply.Message)
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: mercadopago: json.Decode: %v", status.ErrProviderFailure, err)
		}
		return nil
	})
}
