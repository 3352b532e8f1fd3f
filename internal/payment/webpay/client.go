// Package webpay is a thin client for Transbank Webpay Plus REST
// transactions, implementing the checkout gateway.
package webpay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xenking/eventpass/internal/domain/checkout"
)

// IntegrationURL is the Transbank integration environment.
const IntegrationURL = "https://webpay3gint.transbank.cl"

const (
	transactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"
	statusAuthorized = "AUTHORIZED"
	maxBuyOrderLen   = 26
)

var _ checkout.Gateway = (*Client)(nil)

// Config configures a Client.
type Config struct {
	BaseURL      string
	CommerceCode string
	APIKey       string
	Timeout      time.Duration
	// RequestsPerSecond caps outbound calls. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int
	TracerProvider    trace.TracerProvider
}

// APIError is a non-2xx answer from Transbank.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("webpay api status %d: %s", e.StatusCode, e.Message)
}

// Client talks to Webpay Plus.
type Client struct {
	baseURL      string
	commerceCode string
	apiKey       string
	http         *http.Client
	limiter      *rate.Limiter
}

// NewClient creates a Client. A nil httpClient gets an instrumented default
// transport.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if httpClient == nil {
		var opts []otelhttp.Option
		if cfg.TracerProvider != nil {
			opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
		}
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = IntegrationURL
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:      baseURL,
		commerceCode: cfg.CommerceCode,
		apiKey:       cfg.APIKey,
		http:         httpClient,
		limiter:      limiter,
	}
}

// Authorize creates a Webpay transaction for the order total and returns the
// token plus the form URL the buyer is sent to.
func (c *Client) Authorize(ctx context.Context, req checkout.AuthorizeRequest) (*checkout.Authorization, error) {
	if !req.Amount.IsPositive() {
		return nil, errors.Errorf("amount must be positive, got %s", req.Amount)
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("buy_order")
	e.Str(buyOrder(req.OrderID))
	e.FieldStart("session_id")
	e.Str(req.OrderID)
	e.FieldStart("amount")
	e.Int64(req.Amount.IntPart())
	e.FieldStart("return_url")
	e.Str(req.ReturnURL)
	e.ObjEnd()

	body, err := c.do(ctx, http.MethodPost, transactionsPath, e.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "create transaction")
	}

	var auth checkout.Authorization
	if err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "token":
			v, err := d.Str()
			auth.Token = v
			return err
		case "url":
			v, err := d.Str()
			auth.RedirectURL = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode create response")
	}
	if auth.Token == "" || auth.RedirectURL == "" {
		return nil, errors.New("create response missing token or url")
	}
	return &auth, nil
}

// Confirm commits the transaction behind token. Declined payments are
// reported through Confirmation.Authorized, not as errors.
func (c *Client) Confirm(ctx context.Context, token string) (*checkout.Confirmation, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("token is required")
	}

	body, err := c.do(ctx, http.MethodPut, transactionsPath+"/"+url.PathEscape(token), nil)
	if err != nil {
		return nil, errors.Wrap(err, "commit transaction")
	}

	var (
		conf         checkout.Confirmation
		status       string
		responseCode = -1
	)
	if err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			status = v
			return err
		case "amount":
			n, err := d.Num()
			if err != nil {
				return err
			}
			conf.Amount, err = decimal.NewFromString(n.String())
			return err
		case "authorization_code":
			v, err := d.Str()
			conf.Reference = v
			return err
		case "response_code":
			v, err := d.Int()
			responseCode = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode commit response")
	}

	conf.Authorized = status == statusAuthorized && responseCode == 0
	zctx.From(ctx).Debug("Webpay commit",
		zap.String("status", status),
		zap.Int("response_code", responseCode),
		zap.String("amount", conf.Amount.String()),
	)
	return &conf, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limit")
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Tbk-Api-Key-Id", c.commerceCode)
	req.Header.Set("Tbk-Api-Key-Secret", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// errorMessage extracts error_message from a Transbank error body, falling
// back to the raw text.
func errorMessage(body []byte) string {
	var msg string
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "error_message" {
			return d.Skip()
		}
		v, err := d.Str()
		msg = v
		return err
	})
	if err != nil || msg == "" {
		return strings.TrimSpace(string(body))
	}
	return msg
}

// buyOrder derives the 26 character merchant order reference from an order
// UUID.
func buyOrder(orderID string) string {
	s := strings.ReplaceAll(orderID, "-", "")
	if len(s) > maxBuyOrderLen {
		s = s[:maxBuyOrderLen]
	}
	return s
}
