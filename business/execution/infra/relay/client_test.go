package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	detection "github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/business/execution/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
	"github.com/fd1az/sandwich-bot/internal/httpclient"
	"github.com/fd1az/sandwich-bot/internal/logger"
)

const relayURL = "https://relay.test/rpc"

func newTestClient(t *testing.T) *Client {
	t.Helper()

	mockClient := &http.Client{}
	httpmock.ActivateNonDefault(mockClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	client, err := NewClient(DefaultClientConfig(relayURL), key, log,
		httpclient.WithHTTPClient(mockClient))
	require.NoError(t, err)
	return client
}

func testBundle(t *testing.T) *domain.Bundle {
	t.Helper()

	chain := detection.Chain{Name: "ethereum", Family: detection.FamilyEVM, ID: 1}
	bundle := domain.NewBundle("bundle-1", chain, "opp-1", "0xattacker", 12345)
	err := bundle.SetTxs([]domain.BundleTx{
		{Role: domain.RoleFrontRun, Hash: "0xfront", Raw: []byte{0x02, 0xf8, 0x01}, Nonce: 7},
		{Role: domain.RoleVictim, Hash: "0xvictimhash"},
		{Role: domain.RoleBackRun, Hash: "0xback", Raw: []byte{0x02, 0xf8, 0x02}, Nonce: 8},
	})
	require.NoError(t, err)
	return bundle
}

func respondJSON(t *testing.T, check func(body map[string]any), result string) httpmock.Responder {
	t.Helper()
	return func(req *http.Request) (*http.Response, error) {
		data, err := io.ReadAll(req.Body)
		require.NoError(t, err)

		var body map[string]any
		require.NoError(t, json.Unmarshal(data, &body))
		if check != nil {
			check(body)
		}

		sig := req.Header.Get("X-Flashbots-Signature")
		require.NotEmpty(t, sig)
		require.True(t, strings.HasPrefix(sig, "0x"))
		require.Contains(t, sig, ":")

		return httpmock.NewStringResponse(200, result), nil
	}
}

func TestClient_SimulateParsesResult(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", relayURL, respondJSON(t,
		func(body map[string]any) {
			require.Equal(t, "mev_simBundle", body["method"])
		},
		`{"jsonrpc":"2.0","id":1,"result":{"success":true,"profit":"0x5dc","gasUsed":"0x493e0"}}`,
	))

	result, err := client.Simulate(context.Background(), testBundle(t))
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, int64(1500), result.ProfitWei.Int64())
	require.Equal(t, uint64(300_000), result.GasUsed)
}

func TestClient_SimulateSurfacesRevert(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", relayURL, respondJSON(t, nil,
		`{"jsonrpc":"2.0","id":1,"result":{"success":false,"error":"UniswapV2: K","gasUsed":"0x0"}}`,
	))

	result, err := client.Simulate(context.Background(), testBundle(t))
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, "UniswapV2: K", result.Revert)
}

func TestClient_SubmitSendsVictimByHash(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", relayURL, respondJSON(t,
		func(body map[string]any) {
			require.Equal(t, "mev_sendBundle", body["method"])

			params := body["params"].([]any)
			payload := params[0].(map[string]any)
			require.Equal(t, "v0.1", payload["version"])
			require.Equal(t, "0x3039", payload["inclusion"].(map[string]any)["block"])

			items := payload["body"].([]any)
			require.Len(t, items, 3)

			front := items[0].(map[string]any)
			require.Equal(t, "0x02f801", front["tx"])
			require.NotContains(t, front, "hash")

			victim := items[1].(map[string]any)
			require.Equal(t, "0xvictimhash", victim["hash"])
			require.NotContains(t, victim, "tx")
		},
		`{"jsonrpc":"2.0","id":1,"result":{"bundleHash":"0xbundle"}}`,
	))

	hash, err := client.Submit(context.Background(), testBundle(t))
	require.NoError(t, err)
	require.Equal(t, "0xbundle", hash)
}

func TestClient_SubmitTransportFailureIsRetryable(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", relayURL,
		httpmock.NewStringResponder(503, "relay overloaded"))

	_, err := client.Submit(context.Background(), testBundle(t))
	require.Error(t, err)
	require.Equal(t, apperror.CodeSubmissionFailed, apperror.GetCode(err))
	require.True(t, apperror.IsRetryable(err))
}

func TestClient_SubmitRejectionIsTerminal(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", relayURL, httpmock.NewStringResponder(200,
		`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bundle too large"}}`))

	_, err := client.Submit(context.Background(), testBundle(t))
	require.Error(t, err)
	require.Equal(t, apperror.CodeRelayError, apperror.GetCode(err))
	require.False(t, apperror.IsRetryable(err))
}

func TestClient_SubmitNonceRejectionSignalsConflict(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", relayURL, httpmock.NewStringResponder(200,
		`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"nonce too low"}}`))

	_, err := client.Submit(context.Background(), testBundle(t))
	require.Error(t, err)
	require.Equal(t, apperror.CodeNonceConflict, apperror.GetCode(err))
	require.False(t, apperror.IsRetryable(err))
}

func TestClient_IdentityMatchesSignature(t *testing.T) {
	client := newTestClient(t)

	var header string
	httpmock.RegisterResponder("POST", relayURL, func(req *http.Request) (*http.Response, error) {
		header = req.Header.Get("X-Flashbots-Signature")
		return httpmock.NewStringResponse(200,
			`{"jsonrpc":"2.0","id":1,"result":{"bundleHash":"0x1"}}`), nil
	})

	_, err := client.Submit(context.Background(), testBundle(t))
	require.NoError(t, err)

	parts := strings.SplitN(header, ":", 2)
	require.Len(t, parts, 2)
	require.Equal(t, client.Identity(), parts[0])
	require.NotEmpty(t, parts[1])
}

func TestClient_RequiresSigningKey(t *testing.T) {
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	_, err := NewClient(DefaultClientConfig(relayURL), nil, log)
	require.Error(t, err)
	require.Equal(t, apperror.CodeConfigurationError, apperror.GetCode(err))
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig(relayURL)
	require.Equal(t, relayURL, cfg.URL)
	require.Equal(t, 5*time.Second, cfg.Timeout)
	require.Positive(t, cfg.RequestsPerMinute)
}
