package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeRequiredField:      "Required field is missing",
	CodeInvalidInput:       "Invalid input provided",
	CodeInvalidState:       "Invalid state for this operation",
	CodeNotFound:           "Resource not found",
	CodeConfigurationError: "Configuration error",

	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeRateLimitExceeded:    "Rate limit exceeded",
	CodeCircuitOpen:          "Circuit breaker is open",

	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	CodeDecodeFailed:          "Failed to decode swap calldata",
	CodeTokenBlacklisted:      "Token is blacklisted",
	CodeInsufficientLiquidity: "Pool liquidity below minimum threshold",
	CodeImplausibleDecimals:   "Token decimals outside plausible range",
	CodePoolNotFound:          "Pool not found",

	CodeInsufficientProfit: "No profitable position size exists",
	CodeInvalidTradeSize:   "Invalid trade size",

	CodeStaleData:          "Reserve or victim data too old to act on",
	CodeSimulationMismatch: "Simulated profit diverges from estimate",
	CodeSimulationFailed:   "Bundle simulation failed",
	CodeSubmissionFailed:   "Bundle submission failed",
	CodeNonceConflict:      "Nonce conflict, refresh required",
	CodeEmergencyStop:      "Emergency stop active",
	CodeBundleExpired:      "Bundle not included within target window",
	CodeSigningFailed:      "Transaction signing failed",

	CodeChainConnectionFailed: "Failed to connect to chain node",
	CodeChainRPCError:         "Chain RPC call failed",
	CodeGasEstimationFailed:   "Gas estimation failed",
	CodeRelayError:            "Relay request failed",
	CodePriceFeedError:        "Price feed request failed",
	CodePriceFeedStale:        "Price feed data is stale",

	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",

	CodeCacheMiss:    "Cache miss",
	CodeCacheExpired: "Cache entry expired",
}
