package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Specific sentinels below wrap one of these so callers
// can match either the precise failure or its broad category.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound     = fmt.Errorf("llm provider not found")
	ErrToolNotFound         = fmt.Errorf("tool not found")
	ErrConversationNotFound = fmt.Errorf("conversation: %w", ErrNotFound)
	ErrTodoNotFound         = fmt.Errorf("todo: %w", ErrNotFound)
	ErrConfigLoad           = fmt.Errorf("failed to load configuration")
	ErrDecryption           = fmt.Errorf("decryption failed")
	ErrEncryption           = fmt.Errorf("encryption operation failed")

	// Model call errors.
	ErrModelCallFailed = fmt.Errorf("model call failed")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrToolFailure     = fmt.Errorf("tool execution failed")
	ErrCircuitOpen     = fmt.Errorf("provider: %w", ErrProviderError)
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Tool.Execute")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
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

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ModelCallStage names which of the two model calls in a turn failed.
type ModelCallStage string

const (
	StageInitial ModelCallStage = "initial"
	StageFinal   ModelCallStage = "final"
)

// ModelCallError reports a failed model invocation. It matches
// ErrModelCallFailed with errors.Is and unwraps to the provider error.
type ModelCallError struct {
	Stage ModelCallStage
	Err   error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("%s (%s call): %v", ErrModelCallFailed, e.Stage, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

func (e *ModelCallError) Is(target error) bool { return target == ErrModelCallFailed }

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrContextOverflow) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring and API responses.
type ErrorCode string

const (
	CodeUnknown              ErrorCode = "UNKNOWN"
	CodeProviderNotFound     ErrorCode = "PROVIDER_NOT_FOUND"
	CodeToolNotFound         ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure          ErrorCode = "TOOL_FAILURE"
	CodeConversationNotFound ErrorCode = "CONVERSATION_NOT_FOUND"
	CodeTodoNotFound         ErrorCode = "TODO_NOT_FOUND"
	CodeConfigLoad           ErrorCode = "CONFIG_LOAD"
	CodeEncryption           ErrorCode = "ENCRYPTION"
	CodeDecryption           ErrorCode = "DECRYPTION"
	CodeModelCallFailed      ErrorCode = "MODEL_CALL_FAILED"
	CodeContextOverflow      ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit            ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid          ErrorCode = "AUTH_INVALID"
	CodeCircuitOpen          ErrorCode = "CIRCUIT_OPEN"

	// Category codes, used when no specific sentinel matches.
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeProviderError ErrorCode = "PROVIDER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:      CodeNotFound,
	ErrTimeout:       CodeTimeout,
	ErrInvalidInput:  CodeInvalidInput,
	ErrProviderError: CodeProviderError,

	ErrProviderNotFound:     CodeProviderNotFound,
	ErrToolNotFound:         CodeToolNotFound,
	ErrToolFailure:          CodeToolFailure,
	ErrConversationNotFound: CodeConversationNotFound,
	ErrTodoNotFound:         CodeTodoNotFound,
	ErrConfigLoad:           CodeConfigLoad,
	ErrEncryption:           CodeEncryption,
	ErrDecryption:           CodeDecryption,
	ErrModelCallFailed:      CodeModelCallFailed,
	ErrContextOverflow:      CodeContextOverflow,
	ErrRateLimit:            CodeRateLimit,
	ErrAuthInvalid:          CodeAuthInvalid,
	ErrCircuitOpen:          CodeCircuitOpen,
}

// specificSentinels are checked before the category sentinels they wrap so a
// chain like ErrConversationNotFound -> ErrNotFound yields the specific code.
var specificSentinels = []error{
	ErrModelCallFailed,
	ErrConversationNotFound,
	ErrTodoNotFound,
	ErrCircuitOpen,
	ErrProviderNotFound,
	ErrToolNotFound,
	ErrToolFailure,
	ErrConfigLoad,
	ErrEncryption,
	ErrDecryption,
	ErrContextOverflow,
	ErrRateLimit,
	ErrAuthInvalid,
}

var categorySentinels = []error{ErrNotFound, ErrTimeout, ErrInvalidInput, ErrProviderError}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	for _, s := range specificSentinels {
		if errors.Is(err, s) {
			return errorCodeMap[s]
		}
	}
	for _, s := range categorySentinels {
		if errors.Is(err, s) {
			return errorCodeMap[s]
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
