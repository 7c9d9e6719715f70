package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	CodeConfigurationError: "Configuration error",

	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	CodeBindError:      "Failed to bind listening socket",
	CodeAlreadyRunning: "Income server is already running",
	CodeNotRunning:     "Income server is not running",
	CodeAcceptError:    "Failed to accept connection",

	CodeIncompleteFrame: "Peer closed the stream mid-frame",
	CodeFrameTooLarge:   "Declared frame length exceeds the configured maximum",

	CodeDecodeError:      "Frame payload is not valid UTF-8",
	CodeMalformedPayload: "Payload fields are missing or wrongly typed",
	CodeUnparseableLine:  "Line matched no known income format",

	CodeSendFailure:       "Failed to send frame to connection",
	CodeConnectionClosed:  "Connection closed",
	CodeConnectionFailed:  "Failed to connect to income server",
	CodeNoPendingMessage:  "No pending price configuration",
	CodeInvalidPriceTable: "Invalid price table",

	CodeCircuitOpen: "Circuit breaker is open",
}
