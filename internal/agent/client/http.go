package client

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

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/codec"
)

const maxResponseBody = 64 << 10

type HTTPConfig struct {
	BaseURL string
	APIKey  string
	UseCBOR bool
	Timeout time.Duration // per request; 0 leaves it to the caller's context
}

type HTTPClient struct {
	baseURL string
	apiKey  string
	cbor    bool
	http    *http.Client
}

func NewHTTP(cfg HTTPConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		cbor:    cfg.UseCBOR,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) Submit(ctx context.Context, req types.CaptureRequest) (Result, error) {
	status, body, err := c.post(ctx, "/v1/captures", req)
	if err != nil {
		return Result{}, err
	}

	var resp types.CaptureResponse
	decodeErr := c.decode(body, &resp)

	switch {
	case status == http.StatusOK || status == http.StatusCreated || status == http.StatusAccepted:
		if decodeErr != nil {
			// The server accepted something; resending with the same key is safe.
			return Result{}, retryable(status, fmt.Errorf("decode capture response: %w", decodeErr))
		}
		return resultFrom(resp), nil
	case retryableStatus(status):
		return Result{}, retryable(status, fmt.Errorf("server returned %d", status))
	default:
		reason := resp.Reason
		if decodeErr != nil || !knownReason(reason) {
			reason = reasonForStatus(status)
		}
		return Result{}, terminal(status, reason, nil)
	}
}

func (c *HTTPClient) Heartbeat(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	status, body, err := c.post(ctx, "/v1/heartbeat", req)
	if err != nil {
		return types.HeartbeatResponse{}, err
	}
	if status != http.StatusOK {
		if retryableStatus(status) {
			return types.HeartbeatResponse{}, retryable(status, fmt.Errorf("server returned %d", status))
		}
		return types.HeartbeatResponse{}, terminal(status, reasonForStatus(status), nil)
	}

	var resp types.HeartbeatResponse
	if err := c.decode(body, &resp); err != nil {
		return types.HeartbeatResponse{}, retryable(status, fmt.Errorf("decode heartbeat response: %w", err))
	}
	return resp, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, v any) (int, []byte, error) {
	payload, contentType, err := c.encode(v)
	if err != nil {
		return 0, nil, terminal(0, string(types.ReasonInvalidRequest), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, terminal(0, string(types.ReasonInvalidRequest), err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, retryable(0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, retryable(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}
	return resp.StatusCode, body, nil
}

func (c *HTTPClient) encode(v any) ([]byte, string, error) {
	if c.cbor {
		b, err := codec.Marshal(v)
		return b, codec.ContentType, err
	}
	b, err := json.Marshal(v)
	return b, "application/json", err
}

func (c *HTTPClient) decode(body []byte, v any) error {
	if len(body) == 0 {
		return errors.New("empty body")
	}
	if c.cbor {
		return codec.Unmarshal(body, v)
	}
	return json.Unmarshal(body, v)
}

func retryableStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}

func reasonForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return string(types.ReasonDeviceUnauthenticated)
	case http.StatusConflict:
		return string(types.ReasonDuplicateWithinWindow)
	}
	return string(types.ReasonInvalidRequest)
}
