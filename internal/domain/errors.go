package domain

import (
	"errors"
	"fmt"
	"time"
)

// Protocol taxonomy sentinels. Every failure that reaches the channel wraps
// exactly one of these.
var (
	ErrFraming          = fmt.Errorf("malformed frame")
	ErrUnknownCommand   = fmt.Errorf("unknown command")
	ErrHandlerExecution = fmt.Errorf("handler execution failed")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrProtocol         = fmt.Errorf("protocol violation")
	ErrValidation       = fmt.Errorf("validation failed")
	ErrServer           = fmt.Errorf("server reported failure")
)

// Sentinel errors for the supporting layers.
var (
	ErrEmptyPayload       = fmt.Errorf("empty payload")
	ErrPayloadParse       = fmt.Errorf("payload could not be parsed")
	ErrChannelClosed      = fmt.Errorf("channel closed")
	ErrDuplicateResponse  = fmt.Errorf("response already sent")
	ErrStorage            = fmt.Errorf("storage operation failed")
	ErrStorageUnavailable = fmt.Errorf("storage unavailable")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Router.Route")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // diagnostic detail, never sent over the channel
	SubSystem string // subsystem identifier (e.g., "dea", "npi"); used for ErrorCode dispatch
	Message   string // user-facing text carried in the response "error" field
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WithMessage sets the user-facing message and returns e for chaining.
func (e *DomainError) WithMessage(msg string) *DomainError {
	e.Message = msg
	return e
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// FramingError reports a frame that does not follow the wire grammar.
func FramingError(detail string) *DomainError {
	return NewDomainError("Frame.Decode", ErrFraming, detail).
		WithMessage("Invalid message format: " + detail)
}

// UnknownCommandError reports a command with no registered handler.
func UnknownCommandError(command string) *DomainError {
	return NewDomainError("Router.Route", ErrUnknownCommand, command).
		WithMessage(fmt.Sprintf("Unknown command '%s'", command))
}

// HandlerExecutionError reports a panic that escaped a handler. cause is
// kept for logs only.
func HandlerExecutionError(command string, id uint64, cause any) *DomainError {
	return NewDomainError("Router.Invoke", ErrHandlerExecution,
		fmt.Sprintf("command=%s id=%d: %v", command, id, cause)).
		WithMessage(fmt.Sprintf("Handler error while processing '%s'", command))
}

// TimeoutError reports a call that received no response within its bound.
func TimeoutError(command string, id uint64, after time.Duration) *DomainError {
	return NewDomainError("Correlation.Issue", ErrTimeout,
		fmt.Sprintf("command=%s id=%d", command, id)).
		WithMessage(fmt.Sprintf("Request '%s' timed out after %s", command, after))
}

// ProtocolError reports a frame that breaks the request/response contract.
func ProtocolError(op, detail string) *DomainError {
	return NewDomainError(op, ErrProtocol, detail).
		WithMessage("Protocol error: " + detail)
}

// ValidationError reports domain input rejected by a handler or service.
func ValidationError(subsystem, op, message string) *DomainError {
	return NewSubSystemError(subsystem, op, ErrValidation, message).WithMessage(message)
}

// ServerError reports a response whose payload carried success:false.
func ServerError(command, message string) *DomainError {
	if message == "" {
		message = "Request failed"
	}
	return NewDomainError("Correlation.Resolve", ErrServer, command).WithMessage(message)
}

// StorageError reports a repository failure.
func StorageError(subsystem, op, message string, cause error) *DomainError {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return NewSubSystemError(subsystem, op, ErrStorage, detail).WithMessage(message)
}

// PublicMessage returns the text that may cross the channel for err.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}

// ErrorCode is a machine-parseable error category sent beside the message.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeFraming            ErrorCode = "FRAMING_ERROR"
	CodeUnknownCommand     ErrorCode = "UNKNOWN_COMMAND"
	CodeHandlerExecution   ErrorCode = "HANDLER_EXECUTION_ERROR"
	CodeTimeout            ErrorCode = "TIMEOUT"
	CodeProtocol           ErrorCode = "PROTOCOL_ERROR"
	CodeValidation         ErrorCode = "VALIDATION_ERROR"
	CodeServer             ErrorCode = "SERVER_ERROR"
	CodeEmptyPayload       ErrorCode = "EMPTY_PAYLOAD"
	CodePayloadParse       ErrorCode = "PAYLOAD_PARSE"
	CodeChannelClosed      ErrorCode = "CHANNEL_CLOSED"
	CodeDuplicateResponse  ErrorCode = "DUPLICATE_RESPONSE"
	CodeStorage            ErrorCode = "STORAGE_ERROR"
	CodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeDEAValidation     ErrorCode = "DEA_VALIDATION"
	CodeNDEAValidation    ErrorCode = "NDEA_VALIDATION"
	CodeLicenseValidation ErrorCode = "LICENSE_VALIDATION"
	CodeNPIValidation     ErrorCode = "NPI_VALIDATION"
	CodeDEAInsert         ErrorCode = "DEA_INSERT"
	CodeNDEAInsert        ErrorCode = "NDEA_INSERT"
	CodeLicenseInsert     ErrorCode = "LICENSE_INSERT"
	CodeNPIInsert         ErrorCode = "NPI_INSERT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrFraming:            CodeFraming,
	ErrUnknownCommand:     CodeUnknownCommand,
	ErrHandlerExecution:   CodeHandlerExecution,
	ErrTimeout:            CodeTimeout,
	ErrProtocol:           CodeProtocol,
	ErrValidation:         CodeValidation,
	ErrServer:             CodeServer,
	ErrEmptyPayload:       CodeEmptyPayload,
	ErrPayloadParse:       CodePayloadParse,
	ErrChannelClosed:      CodeChannelClosed,
	ErrDuplicateResponse:  CodeDuplicateResponse,
	ErrStorage:            CodeStorage,
	ErrStorageUnavailable: CodeStorageUnavailable,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrValidation: {
		"dea":     CodeDEAValidation,
		"ndea":    CodeNDEAValidation,
		"license": CodeLicenseValidation,
		"npi":     CodeNPIValidation,
	},
	ErrStorage: {
		"dea":     CodeDEAInsert,
		"ndea":    CodeNDEAInsert,
		"license": CodeLicenseInsert,
		"npi":     CodeNPIInsert,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
