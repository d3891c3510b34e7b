// Package relay implements the bundle relay client over signed JSON-RPC.
package relay

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/sandwich-bot/business/execution/app"
	"github.com/fd1az/sandwich-bot/business/execution/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
	"github.com/fd1az/sandwich-bot/internal/circuitbreaker"
	"github.com/fd1az/sandwich-bot/internal/httpclient"
	"github.com/fd1az/sandwich-bot/internal/logger"
	"github.com/fd1az/sandwich-bot/internal/ratelimit"
)

const (
	meterName = "github.com/fd1az/sandwich-bot/business/execution/infra/relay"

	signatureHeader = "X-Flashbots-Signature"
	bundleVersion   = "v0.1"

	methodSimBundle  = "mev_simBundle"
	methodSendBundle = "mev_sendBundle"
)

// ClientConfig holds relay client configuration.
type ClientConfig struct {
	// URL is the relay's JSON-RPC endpoint.
	URL string
	// RequestsPerMinute throttles outbound calls.
	RequestsPerMinute int
	// Timeout bounds each request.
	Timeout time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:               url,
		RequestsPerMinute: 300,
		Timeout:           5 * time.Second,
	}
}

type clientMetrics struct {
	simulations metric.Int64Counter
	submissions metric.Int64Counter
	errors      metric.Int64Counter
}

// Client talks to a private relay. Requests are signed with the searcher
// identity key; the relay builds reputation per identity, so the key must be
// stable across restarts.
type Client struct {
	config  ClientConfig
	http    *httpclient.Client
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.CircuitBreaker[json.RawMessage]
	key     *ecdsa.PrivateKey
	address string
	logger  logger.LoggerInterface
	nextID  atomic.Uint64
	metrics *clientMetrics
}

// NewClient creates a relay client signing with key.
func NewClient(cfg ClientConfig, key *ecdsa.PrivateKey, log logger.LoggerInterface, httpOpts ...httpclient.Option) (*Client, error) {
	if key == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("relay signing key is required"))
	}

	opts := append([]httpclient.Option{httpclient.WithRequestTimeout(cfg.Timeout)}, httpOpts...)
	httpClient, err := httpclient.New("relay", opts...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:  cfg,
		http:    httpClient,
		limiter: ratelimit.New(cfg.RequestsPerMinute),
		breaker: circuitbreaker.New[json.RawMessage](circuitbreaker.DefaultConfig("relay")),
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		logger:  log,
	}

	if err := c.initMetrics(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &clientMetrics{}

	c.metrics.simulations, err = meter.Int64Counter(
		"relay_simulations_total",
		metric.WithDescription("Bundle simulations requested"),
	)
	if err != nil {
		return err
	}

	c.metrics.submissions, err = meter.Int64Counter(
		"relay_submissions_total",
		metric.WithDescription("Bundle submissions requested"),
	)
	if err != nil {
		return err
	}

	c.metrics.errors, err = meter.Int64Counter(
		"relay_errors_total",
		metric.WithDescription("Relay calls that failed"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Identity returns the signing address used for relay reputation.
func (c *Client) Identity() string {
	return c.address
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// bundleItem is one entry in a bundle body: either a signed raw transaction
// or a mempool transaction referenced by hash.
type bundleItem struct {
	Tx        string `json:"tx,omitempty"`
	Hash      string `json:"hash,omitempty"`
	CanRevert bool   `json:"canRevert,omitempty"`
}

type bundleInclusion struct {
	Block    string `json:"block"`
	MaxBlock string `json:"maxBlock,omitempty"`
}

type bundlePayload struct {
	Version   string          `json:"version"`
	Inclusion bundleInclusion `json:"inclusion"`
	Body      []bundleItem    `json:"body"`
}

type simResult struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Profit  *hexutil.Big   `json:"profit,omitempty"`
	GasUsed hexutil.Uint64 `json:"gasUsed"`
}

type sendResult struct {
	BundleHash string `json:"bundleHash"`
}

func bundleBody(bundle *domain.Bundle) []bundleItem {
	txs := bundle.Txs()
	body := make([]bundleItem, 0, len(txs))
	for _, tx := range txs {
		if tx.Role == domain.RoleVictim {
			// The victim is already in the public mempool; the relay pulls it
			// by hash so the bundle stays atomic around it.
			body = append(body, bundleItem{Hash: tx.Hash})
			continue
		}
		body = append(body, bundleItem{Tx: hexutil.Encode(tx.Raw)})
	}
	return body
}

func (c *Client) payload(bundle *domain.Bundle) bundlePayload {
	return bundlePayload{
		Version: bundleVersion,
		Inclusion: bundleInclusion{
			Block: hexutil.EncodeUint64(bundle.TargetBlock),
		},
		Body: bundleBody(bundle),
	}
}

// Simulate dry-runs the bundle against the relay.
func (c *Client) Simulate(ctx context.Context, bundle *domain.Bundle) (*app.SimulationResult, error) {
	c.metrics.simulations.Add(ctx, 1)

	raw, err := c.call(ctx, methodSimBundle, []any{c.payload(bundle)})
	if err != nil {
		c.metrics.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("method", methodSimBundle)))
		return nil, err
	}

	var result simResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, apperror.New(apperror.CodeRelayError,
			apperror.WithCause(err),
			apperror.WithContext("decode simulation result"))
	}

	out := &app.SimulationResult{
		Success: result.Success,
		GasUsed: uint64(result.GasUsed),
		Revert:  result.Error,
	}
	if result.Profit != nil {
		out.ProfitWei = (*big.Int)(result.Profit)
	}
	return out, nil
}

// Submit sends the bundle for inclusion in its target block. Transport and
// server failures carry SUBMISSION_FAILED and may be retried; an explicit
// JSON-RPC rejection is terminal.
func (c *Client) Submit(ctx context.Context, bundle *domain.Bundle) (string, error) {
	c.metrics.submissions.Add(ctx, 1)

	raw, err := c.call(ctx, methodSendBundle, []any{c.payload(bundle)})
	if err != nil {
		c.metrics.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("method", methodSendBundle)))
		switch apperror.GetCode(err) {
		case apperror.CodeRelayError, apperror.CodeNonceConflict, apperror.CodeCircuitOpen:
			// Explicit rejections and an open breaker are terminal; retrying
			// the same bundle cannot help.
			return "", err
		}
		return "", apperror.New(apperror.CodeSubmissionFailed, apperror.WithCause(err))
	}

	var result sendResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithCause(err),
			apperror.WithContext("decode submission result"))
	}

	c.logger.Debug(ctx, "bundle accepted by relay",
		"bundle_id", bundle.ID, "bundle_hash", result.BundleHash)
	return result.BundleHash, nil
}

// call executes one signed JSON-RPC request through the limiter and breaker.
func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	signature, err := c.sign(body)
	if err != nil {
		return nil, apperror.New(apperror.CodeSigningFailed, apperror.WithCause(err))
	}

	result, err := c.breaker.Execute(func() (json.RawMessage, error) {
		var resp rpcResponse
		headers := map[string]string{signatureHeader: signature}
		if err := c.http.PostJSON(ctx, c.config.URL, json.RawMessage(body), &resp, headers); err != nil {
			return nil, err
		}
		if resp.Error != nil {
			code := apperror.CodeRelayError
			if strings.Contains(strings.ToLower(resp.Error.Message), "nonce") {
				code = apperror.CodeNonceConflict
			}
			return nil, apperror.New(code,
				apperror.WithContext(fmt.Sprintf("relay rejected %s: %d %s", method, resp.Error.Code, resp.Error.Message)))
		}
		return resp.Result, nil
	})
	if err != nil {
		if c.breaker.IsOpen() {
			return nil, apperror.New(apperror.CodeCircuitOpen, apperror.WithCause(err))
		}
		switch apperror.GetCode(err) {
		case apperror.CodeRelayError, apperror.CodeNonceConflict:
			return nil, err
		}
		return nil, apperror.New(apperror.CodeExternalServiceError, apperror.WithCause(err))
	}

	return result, nil
}

// sign produces the identity header: keccak hash of the body, signed as a
// personal message, prefixed with the searcher address.
func (c *Client) sign(body []byte) (string, error) {
	hashed := crypto.Keccak256Hash(body).Hex()
	signature, err := crypto.Sign(accounts.TextHash([]byte(hashed)), c.key)
	if err != nil {
		return "", err
	}
	return c.address + ":" + hexutil.Encode(signature), nil
}
