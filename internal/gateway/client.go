package gateway

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

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/ayo6706/ramp-orchestrator/internal/observability"
	"go.uber.org/zap"
)

const maxResponseBytes = 4 << 20

var ErrResponseTooLarge = errors.New("response body too large")

// Client talks to the ramp backend over HTTP.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a backend client with the given request timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type quoteEnvelope struct {
	Quote *models.Quote `json:"quote"`
}

type txHashRequest struct {
	TransferID string `json:"transferId"`
	TxHash     string `json:"txHash"`
}

type statusResponse struct {
	Status domain.TransferStatus `json:"status"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) CreateQuote(ctx context.Context, req QuoteRequest) (*models.Quote, error) {
	var env quoteEnvelope
	if _, err := c.do(ctx, "create_quote", http.MethodPost, "/v1/quotes", req, &env); err != nil {
		return nil, err
	}
	if env.Quote == nil || strings.TrimSpace(env.Quote.QuoteID) == "" {
		observability.IncrementGatewayCall("create_quote", "malformed")
		return nil, ErrMalformedQuote
	}
	return env.Quote, nil
}

func (c *Client) CreateTransfer(ctx context.Context, req models.TransferRequest) (*models.Transfer, error) {
	var transfer models.Transfer
	if _, err := c.do(ctx, "create_transfer", http.MethodPost, "/v1/transfers", req, &transfer); err != nil {
		return nil, err
	}
	if transfer.TransferID == "" {
		return nil, fmt.Errorf("create_transfer: response missing transferId")
	}
	return &transfer, nil
}

func (c *Client) SubmitTxHash(ctx context.Context, transferID, txHash string) error {
	_, err := c.do(ctx, "submit_tx_hash", http.MethodPost, "/v1/transfers/tx-hash", txHashRequest{
		TransferID: transferID,
		TxHash:     txHash,
	}, nil)
	return err
}

func (c *Client) TransferStatus(ctx context.Context, transferID string) (domain.TransferStatus, error) {
	var resp statusResponse
	path := "/v1/transfers/" + url.PathEscape(transferID) + "/status"
	if _, err := c.do(ctx, "transfer_status", http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (c *Client) FetchKYC(ctx context.Context, address string) (*models.KYCRecord, error) {
	var record models.KYCRecord
	empty, err := c.do(ctx, "fetch_kyc", http.MethodGet, "/v1/kyc/"+url.PathEscape(address), nil, &record)
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) && upstream.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if empty {
		return nil, nil
	}
	return &record, nil
}

// do executes one request. It reports whether the response body was empty.
func (c *Client) do(ctx context.Context, op, method, path string, payload, out any) (bool, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return false, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return false, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		observability.IncrementGatewayCall(op, "error")
		return false, fmt.Errorf("%s: execute request: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		observability.IncrementGatewayCall(op, "error")
		return false, fmt.Errorf("%s: read response: %w", op, err)
	}
	if len(raw) > maxResponseBytes {
		observability.IncrementGatewayCall(op, "error")
		return false, fmt.Errorf("%s: %w", op, ErrResponseTooLarge)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.IncrementGatewayCall(op, "error")
		upstream := &UpstreamError{Operation: op, StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			upstream.Message = eb.Message
			if upstream.Message == "" {
				upstream.Message = eb.Error
			}
		}
		zap.L().Warn("ramp backend returned non-2xx",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", upstream.Message),
		)
		return false, upstream
	}

	observability.IncrementGatewayCall(op, "ok")
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return true, nil
	}
	if out == nil {
		return false, nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return false, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return false, nil
}
