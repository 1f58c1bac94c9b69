// Package attestation talks to the proof oracle that attests to an observed
// reading: submit a request, poll until it is finalized, decode the proof.
package attestation

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

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrTimeout means the request was not finalized within the poll timeout.
	ErrTimeout = errors.New("attestation not finalized in time")
	// ErrRejected means the oracle finished the request without a proof.
	ErrRejected = errors.New("attestation rejected")
	// ErrInvalidPayload means the proof or data were not hex encoded.
	ErrInvalidPayload = errors.New("attestation payload is not hex")
)

const (
	StatusPending   = "pending"
	StatusFinalized = "finalized"
	StatusFailed    = "failed"
)

// Options configures the client. Zero values fall back to defaults.
type Options struct {
	BaseURL      string
	APIKey       string
	MaxAttempts  int
	PollInterval time.Duration
	PollTimeout  time.Duration
	// InitialBackoff and MaxBackoff bound the submit retry delay.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Proof is a finalized attestation ready for resolveMarketWithProof.
type Proof struct {
	RequestID string
	Nodes     [][32]byte
	Data      []byte
}

type Client struct {
	http   *http.Client
	opts   Options
	logger logrus.FieldLogger
}

var validate = validator.New()

func New(httpClient *http.Client, opts Options, logger logrus.FieldLogger) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 120 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 16 * time.Second
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{http: httpClient, opts: opts, logger: logger.WithField("component", "attestation")}
}

type submitRequest struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Timestamp int64   `json:"timestamp"`
}

type submitResponse struct {
	ID string `json:"id" validate:"required"`
}

type statusResponse struct {
	Status          string   `json:"status" validate:"required,oneof=pending finalized failed"`
	Proof           []string `json:"proof"`
	AttestationData string   `json:"attestationData"`
	Error           string   `json:"error"`
}

// Attest submits the reading at (lat, lon, timestamp) and waits for its proof.
func (c *Client) Attest(ctx context.Context, lat, lon float64, timestamp int64) (Proof, error) {
	id, err := c.Submit(ctx, lat, lon, timestamp)
	if err != nil {
		return Proof{}, err
	}
	return c.Await(ctx, id)
}

// Submit posts the request, retrying with capped exponential backoff. The
// same idempotency key is sent on every attempt.
func (c *Client) Submit(ctx context.Context, lat, lon float64, timestamp int64) (string, error) {
	body, err := json.Marshal(submitRequest{Latitude: lat, Longitude: lon, Timestamp: timestamp})
	if err != nil {
		return "", err
	}
	key := uuid.NewString()

	var lastErr error
	delay := c.opts.InitialBackoff
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		var resp submitResponse
		lastErr = c.do(ctx, http.MethodPost, "/attestations", body, key, &resp)
		if lastErr == nil {
			return resp.ID, nil
		}
		if attempt == c.opts.MaxAttempts {
			break
		}
		c.logger.WithError(lastErr).WithField("attempt", attempt).Warn("attestation submit failed, backing off")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > c.opts.MaxBackoff {
			delay = c.opts.MaxBackoff
		}
	}
	return "", fmt.Errorf("submit attestation after %d attempts: %w", c.opts.MaxAttempts, lastErr)
}

// Await polls the request at a fixed interval until it finalizes, fails or
// the poll timeout elapses.
func (c *Client) Await(ctx context.Context, id string) (Proof, error) {
	deadline := time.NewTimer(c.opts.PollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		var st statusResponse
		err := c.do(ctx, http.MethodGet, "/attestations/"+id, nil, "", &st)
		switch {
		case err != nil:
			c.logger.WithError(err).WithField("request_id", id).Warn("attestation status check failed")
		case st.Status == StatusFinalized:
			return decodeProof(id, st)
		case st.Status == StatusFailed:
			return Proof{}, fmt.Errorf("%w: %s", ErrRejected, st.Error)
		}

		select {
		case <-ctx.Done():
			return Proof{}, ctx.Err()
		case <-deadline.C:
			return Proof{}, fmt.Errorf("%w: request %s after %s", ErrTimeout, id, c.opts.PollTimeout)
		case <-ticker.C:
		}
	}
}

func decodeProof(id string, st statusResponse) (Proof, error) {
	data, err := hexutil.Decode(st.AttestationData)
	if err != nil {
		return Proof{}, fmt.Errorf("%w: attestationData: %v", ErrInvalidPayload, err)
	}
	nodes := make([][32]byte, 0, len(st.Proof))
	for i, node := range st.Proof {
		raw, err := hexutil.Decode(node)
		if err != nil || len(raw) != common.HashLength {
			return Proof{}, fmt.Errorf("%w: proof node %d", ErrInvalidPayload, i)
		}
		nodes = append(nodes, [32]byte(common.BytesToHash(raw)))
	}
	return Proof{RequestID: id, Nodes: nodes, Data: data}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, idempotencyKey string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.APIKey != "" {
		req.Header.Set("X-API-Key", c.opts.APIKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return validate.Struct(out)
}
