package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeExtraction        = "EXTRACTION_FAILED"
	ErrCodeInference         = "INFERENCE_FAILED"
	ErrCodeRender            = "RENDER_FAILED"
	ErrCodeNoInput           = "NO_INPUT"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeConfig            = "CONFIG_ERROR"
	ErrCodeTimeout           = "TIMEOUT_ERROR"
	ErrCodePathDenied        = "PATH_DENIED"
	ErrCodeBusy              = "BUSY"
)

// Pipeline stage names, used in errors, logs and spans.
const (
	StageExtract  = "extract"
	StageInfer    = "infer"
	StageDescribe = "describe"
	StageRender   = "render"
)

// FlowError is the structured error type shared by every pipeline stage.
type FlowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Stage   string         `json:"stage,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FlowError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// Is matches another *FlowError by code, so errors.Is(err, &FlowError{Code: X}) works.
func (e *FlowError) Is(target error) bool {
	t, ok := target.(*FlowError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStage attaches the pipeline stage that produced the error.
func (e *FlowError) WithStage(stage string) *FlowError {
	e.Stage = stage
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails merges key-value details into the error.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// CodeOf returns the code of the first FlowError in err's chain, or "".
func CodeOf(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// HasCode reports whether err's chain carries a FlowError with the given code.
func HasCode(err error, code string) bool {
	return errors.Is(err, &FlowError{Code: code})
}

// Hints returns the troubleshooting hints attached to err, if any.
func Hints(err error) []string {
	var fe *FlowError
	if !errors.As(err, &fe) || fe.Details == nil {
		return nil
	}
	hints, _ := fe.Details["hints"].([]string)
	return hints
}
