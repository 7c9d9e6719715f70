package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Income channel error codes
const (
	// Server lifecycle
	CodeBindError      Code = "BIND_ERROR"
	CodeAlreadyRunning Code = "ALREADY_RUNNING"
	CodeNotRunning     Code = "NOT_RUNNING"
	CodeAcceptError    Code = "ACCEPT_ERROR"

	// Framing
	CodeIncompleteFrame Code = "INCOMPLETE_FRAME"
	CodeFrameTooLarge   Code = "FRAME_TOO_LARGE"

	// Payload handling
	CodeDecodeError      Code = "DECODE_ERROR"
	CodeMalformedPayload Code = "MALFORMED_PAYLOAD"
	CodeUnparseableLine  Code = "UNPARSEABLE_LINE"

	// Fan-out
	CodeSendFailure       Code = "SEND_FAILURE"
	CodeConnectionClosed  Code = "CONNECTION_CLOSED"
	CodeConnectionFailed  Code = "CONNECTION_FAILED"
	CodeNoPendingMessage  Code = "NO_PENDING_MESSAGE"
	CodeInvalidPriceTable Code = "INVALID_PRICE_TABLE"

	// Circuit breaker errors
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
