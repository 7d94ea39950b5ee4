// Package shopapi is the client for the remote order and payment REST API.
package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/payment"
)

var (
	// ErrUnavailable means no HTTP response was received (connection error or timeout)
	ErrUnavailable = errors.New("shop api unavailable")
	// ErrRequestFailed means the API answered with a non-2xx status
	ErrRequestFailed = errors.New("shop api request failed")
	ErrNotFound      = errors.New("shop api resource not found")
)

const maxResponseBytes = 1 << 20

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: HTTP %d - %s", ErrRequestFailed, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d", ErrRequestFailed, e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrRequestFailed || (target == ErrNotFound && e.Code == http.StatusNotFound)
}

type tokenKey struct{}

// WithAccessToken attaches the caller's bearer token to ctx; requests made with
// that context forward it to the API.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func accessToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("shopapi")
	return c
}

// CreatePaymentOrder calls POST /payment/create-order
func (c *Client) CreatePaymentOrder(ctx context.Context, req payment.CreateOrderRequest) (payment.CreateOrderResponse, error) {
	var resp payment.CreateOrderResponse
	if err := c.doJSON(ctx, http.MethodPost, "/payment/create-order", req, &resp); err != nil {
		return payment.CreateOrderResponse{}, err
	}
	if resp.Order.ID == "" {
		return payment.CreateOrderResponse{}, fmt.Errorf("%w: create-order response has no order id", ErrRequestFailed)
	}
	return resp, nil
}

// VerifyPayment calls POST /payment/verify. A 2xx answer with success=false is
// reported as a rejection.
func (c *Client) VerifyPayment(ctx context.Context, req payment.VerifyRequest) (payment.VerifyResponse, error) {
	var resp payment.VerifyResponse
	if err := c.doJSON(ctx, http.MethodPost, "/payment/verify", req, &resp); err != nil {
		return payment.VerifyResponse{}, err
	}
	if !resp.Success && resp.OrderID == "" {
		return resp, &StatusError{Code: http.StatusOK, Message: firstNonEmpty(resp.Message, "verification rejected")}
	}
	return resp, nil
}

// CancelPayment calls POST /payment/cancel
func (c *Client) CancelPayment(ctx context.Context, req payment.CancelRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/payment/cancel", req, nil)
}

// CreateOrder calls POST /orders. When the response body is not an order the
// submitted order is returned.
func (c *Client) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	body, err := c.do(ctx, http.MethodPost, "/orders", o)
	if err != nil {
		return order.Order{}, err
	}
	created, err := order.Decode(body)
	if err != nil {
		c.logger.Debug("Create order response is not an order", zap.String("order_id", o.OrderID))
		return o, nil
	}
	return created, nil
}

// GetOrderByPayment calls GET /orders/payment/:paymentId
func (c *Client) GetOrderByPayment(ctx context.Context, paymentID string) (order.Order, error) {
	body, err := c.do(ctx, http.MethodGet, "/orders/payment/"+url.PathEscape(paymentID), nil)
	if errors.Is(err, ErrNotFound) {
		return order.Order{}, fmt.Errorf("%w: payment %s", order.ErrOrderNotFound, paymentID)
	}
	if err != nil {
		return order.Order{}, err
	}
	return order.Decode(body)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	body, err := c.do(ctx, method, path, in)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: invalid response from %s: %v", ErrRequestFailed, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("shopapi: failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("shopapi: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := accessToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrUnavailable, err)
	}

	c.logger.Debug("Request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(respBody)}
	}
	return respBody, nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return firstNonEmpty(payload.Message, payload.Error)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
