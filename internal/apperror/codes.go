package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeRequiredField      Code = "REQUIRED_FIELD"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"
	CodeCircuitOpen          Code = "CIRCUIT_OPEN"

	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Pipeline error codes. Only CodeSubmissionFailed is retryable; every other
// code is terminal for the opportunity being processed.
const (
	// Detection
	CodeDecodeFailed          Code = "DECODE_FAILED"
	CodeTokenBlacklisted      Code = "TOKEN_BLACKLISTED"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeImplausibleDecimals   Code = "IMPLAUSIBLE_DECIMALS"
	CodePoolNotFound          Code = "POOL_NOT_FOUND"

	// Optimization
	CodeInsufficientProfit Code = "INSUFFICIENT_PROFIT"
	CodeInvalidTradeSize   Code = "INVALID_TRADE_SIZE"

	// Execution
	CodeStaleData          Code = "STALE_DATA"
	CodeSimulationMismatch Code = "SIMULATION_MISMATCH"
	CodeSimulationFailed   Code = "SIMULATION_FAILED"
	CodeSubmissionFailed   Code = "SUBMISSION_FAILED"
	CodeNonceConflict      Code = "NONCE_CONFLICT"
	CodeEmergencyStop      Code = "EMERGENCY_STOP"
	CodeBundleExpired      Code = "BUNDLE_EXPIRED"
	CodeSigningFailed      Code = "SIGNING_FAILED"
)

// Infrastructure error codes
const (
	CodeChainConnectionFailed Code = "CHAIN_CONNECTION_FAILED"
	CodeChainRPCError         Code = "CHAIN_RPC_ERROR"
	CodeGasEstimationFailed   Code = "GAS_ESTIMATION_FAILED"
	CodeRelayError            Code = "RELAY_ERROR"
	CodePriceFeedError        Code = "PRICE_FEED_ERROR"
	CodePriceFeedStale        Code = "PRICE_FEED_STALE"

	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"

	CodeCacheMiss    Code = "CACHE_MISS"
	CodeCacheExpired Code = "CACHE_EXPIRED"
)
