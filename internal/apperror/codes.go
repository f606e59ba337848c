package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Domain-specific error codes
const (
	// Blockchain/Ethereum errors
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumSubscribeFailed  Code = "ETHEREUM_SUBSCRIBE_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeBlockNotFound            Code = "BLOCK_NOT_FOUND"
	CodeFeeEstimationFailed      Code = "FEE_ESTIMATION_FAILED"
	CodeContractCallFailed       Code = "CONTRACT_CALL_FAILED"

	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketReconnecting    Code = "WEBSOCKET_RECONNECTING"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	// Pool monitoring errors
	CodePoolReadFailed        Code = "POOL_READ_FAILED"
	CodePoolStale             Code = "POOL_STALE"
	CodeInvalidReserves       Code = "INVALID_RESERVES"
	CodeUnsupportedDex        Code = "UNSUPPORTED_DEX"
	CodePriceCalculationError Code = "PRICE_CALCULATION_ERROR"

	// Opportunity analysis errors
	CodePathConstructionFailed Code = "PATH_CONSTRUCTION_FAILED"
	CodeUnprofitable           Code = "UNPROFITABLE"
	CodeInvalidTradeSize       Code = "INVALID_TRADE_SIZE"

	// Transaction build errors
	CodeAdapterNotConfigured Code = "ADAPTER_NOT_CONFIGURED"
	CodeCalldataEncodeFailed Code = "CALLDATA_ENCODE_FAILED"
	CodeInvalidGasSettings   Code = "INVALID_GAS_SETTINGS"
	CodeInvalidNonce         Code = "INVALID_NONCE"

	// Execution errors
	CodeSubmissionFailed     Code = "SUBMISSION_FAILED"
	CodeConfirmationTimeout  Code = "CONFIRMATION_TIMEOUT"
	CodeTransactionReverted  Code = "TRANSACTION_REVERTED"
	CodeExecutionPaused      Code = "EXECUTION_PAUSED"
	CodeTransactionNotFound  Code = "TRANSACTION_NOT_FOUND"
	CodeReplacementUnderpaid Code = "REPLACEMENT_UNDERPAID"

	// Nonce management errors
	CodeNonceStoreCorrupt  Code = "NONCE_STORE_CORRUPT"
	CodeNonceSyncFailed    Code = "NONCE_SYNC_FAILED"
	CodeNoncePendingInUse  Code = "NONCE_PENDING_IN_USE"
	CodeNoncePersistFailed Code = "NONCE_PERSIST_FAILED"

	// Ledger errors
	CodeLedgerWriteFailed Code = "LEDGER_WRITE_FAILED"

	// Circuit breaker errors
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)
