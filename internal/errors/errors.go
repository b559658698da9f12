package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig ErrorType = iota
	// Validation errors - invalid input data
	ErrorTypeValidation
	// VCS errors - diff or file content could not be read from version control
	ErrorTypeVCSAnalysis
	// Parse errors - method boundaries could not be extracted from a source file
	ErrorTypeParse
	// Store corruption - persisted mapping could not be decoded
	ErrorTypeStoreCorrupt
	// Store commit - persisted mapping could not be replaced
	ErrorTypeStoreCommit
	// Merge conflicts - two coverage observations disagree on class metadata
	ErrorTypeMergeConflict
	// FileSystem errors - file I/O failures
	ErrorTypeFileSystem
	// Internal errors - unexpected internal state
	ErrorTypeInternal
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - can continue with degraded functionality
	SeverityLow Severity = iota
	// SeverityMedium - should be addressed but not fatal
	SeverityMedium
	// SeverityHigh - significant issue, may impact functionality
	SeverityHigh
	// SeverityCritical - must be addressed, stops execution
	SeverityCritical
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is checks if this error matches the target error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop execution
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		typeString(e.Type),
		e.Message))

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeVCSAnalysis:
		return "VCS"
	case ErrorTypeParse:
		return "PARSE"
	case ErrorTypeStoreCorrupt:
		return "STORE_CORRUPT"
	case ErrorTypeStoreCommit:
		return "STORE_COMMIT"
	case ErrorTypeMergeConflict:
		return "MERGE_CONFLICT"
	case ErrorTypeFileSystem:
		return "FILESYSTEM"
	case ErrorTypeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Convenience constructors for common error types

// ConfigError creates a configuration error
func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, SeverityCritical, message)
}

// ValidationErrorf creates a validation error with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

// VCSAnalysisError wraps a failure to read the diff or file contents.
// Callers fall back to a full run.
func VCSAnalysisError(err error, message string) *Error {
	return Wrap(err, ErrorTypeVCSAnalysis, SeverityHigh, message)
}

// VCSAnalysisErrorf wraps a VCS failure with formatting
func VCSAnalysisErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeVCSAnalysis, SeverityHigh, fmt.Sprintf(format, args...))
}

// ParseError reports that a single file could not be parsed.
// It is localized to that file.
func ParseError(path, message string) *Error {
	return New(ErrorTypeParse, SeverityLow, message).WithContext("path", path)
}

// StoreCorruptError wraps a failure to decode a persisted mapping.
// Callers treat it as a cold start.
func StoreCorruptError(err error, branch string) *Error {
	return Wrap(err, ErrorTypeStoreCorrupt, SeverityMedium, "stored impact mapping is unreadable").
		WithContext("branch", branch)
}

// StoreCommitError wraps a failure to persist a mapping. Prior state is intact.
func StoreCommitError(err error, branch string) *Error {
	return Wrap(err, ErrorTypeStoreCommit, SeverityHigh, "failed to commit impact mapping").
		WithContext("branch", branch)
}

// MergeConflictError describes two observations that disagree on class metadata
func MergeConflictError(suite, class, previous, latest string) *Error {
	return New(ErrorTypeMergeConflict, SeverityLow,
		fmt.Sprintf("class %s reported from %q and %q", class, previous, latest)).
		WithContext("suite", suite).
		WithContext("class", class)
}

// FileSystemErrorf wraps a filesystem error with formatting
func FileSystemErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeFileSystem, SeverityHigh, fmt.Sprintf(format, args...))
}

// IsFatal checks if an error is fatal (should stop execution)
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e.IsFatal()
	}

	return false
}

// IsType reports whether any error in err's chain is an *Error of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// Details returns the DetailedString of the first *Error in err's chain, or
// "" when there is none
func Details(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.DetailedString()
	}
	return ""
}
