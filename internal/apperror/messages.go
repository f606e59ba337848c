package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Blockchain/Ethereum errors
	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumSubscribeFailed:  "Failed to subscribe to Ethereum events",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeBlockNotFound:            "Block not found",
	CodeFeeEstimationFailed:      "Fee estimation failed",
	CodeContractCallFailed:       "Smart contract call failed",

	// WebSocket errors
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketReconnecting:    "WebSocket reconnecting",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	// Pool monitoring errors
	CodePoolReadFailed:        "Failed to read pool state",
	CodePoolStale:             "Pool price data is stale",
	CodeInvalidReserves:       "Invalid pool reserves",
	CodeUnsupportedDex:        "Unsupported DEX protocol",
	CodePriceCalculationError: "Price calculation failed",

	// Opportunity analysis errors
	CodePathConstructionFailed: "Failed to construct swap path",
	CodeUnprofitable:           "Opportunity is not profitable",
	CodeInvalidTradeSize:       "Invalid trade size",

	// Transaction build errors
	CodeAdapterNotConfigured: "No adapter configured for DEX",
	CodeCalldataEncodeFailed: "Failed to encode calldata",
	CodeInvalidGasSettings:   "Invalid gas settings",
	CodeInvalidNonce:         "Invalid nonce",

	// Execution errors
	CodeSubmissionFailed:     "Transaction submission failed",
	CodeConfirmationTimeout:  "Transaction confirmation timed out",
	CodeTransactionReverted:  "Transaction reverted on chain",
	CodeExecutionPaused:      "Execution is paused",
	CodeTransactionNotFound:  "Tracked transaction not found",
	CodeReplacementUnderpaid: "Replacement fee below required bump",

	// Nonce management errors
	CodeNonceStoreCorrupt:  "Nonce store contains invalid state",
	CodeNonceSyncFailed:    "Failed to sync nonce with chain",
	CodeNoncePendingInUse:  "Previous transaction still pending",
	CodeNoncePersistFailed: "Failed to persist nonce state",

	// Ledger errors
	CodeLedgerWriteFailed: "Failed to write ledger record",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
