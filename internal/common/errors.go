package common

import (
	"errors"
	"fmt"

	"github.com/kopfenjager/Vision-crm-agent/constants"
)

// AppError represents application-specific errors scoped to one request.
type AppError struct {
	Code    string
	Stage   constants.Stage
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Code, e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Code, e.Stage, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error classes. Every AppError wraps exactly one of these.
var (
	ErrInput             = errors.New("invalid input")
	ErrDecode            = errors.New("image decode failed")
	ErrRecognition       = errors.New("text recognition failed")
	ErrDetection         = errors.New("face detection failed")
	ErrModelUnavailable  = errors.New("language model unavailable")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrStorage           = errors.New("storage error")
	ErrInternal          = errors.New("internal error")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

const (
	CodeInput             = "INPUT_ERROR"
	CodeDecode            = "DECODE_ERROR"
	CodeRecognition       = "RECOGNITION_ERROR"
	CodeDetection         = "DETECTION_ERROR"
	CodeModelUnavailable  = "MODEL_UNAVAILABLE"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeStorage           = "STORAGE_ERROR"
	CodeInternal          = "INTERNAL_ERROR"
	CodeConfig            = "CONFIG_ERROR"
)

// classError joins the class sentinel with the underlying cause so both match errors.Is.
type classError struct {
	class error
	cause error
}

func (e *classError) Error() string {
	if e.cause == nil {
		return e.class.Error()
	}
	return e.class.Error() + ": " + e.cause.Error()
}

func (e *classError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.class}
	}
	return []error{e.class, e.cause}
}

// NewAppError builds an AppError whose Cause matches class and cause.
func NewAppError(code string, stage constants.Stage, message string, class, cause error) *AppError {
	return &AppError{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   &classError{class: class, cause: cause},
	}
}

func InputError(message string) *AppError {
	return NewAppError(CodeInput, constants.StageInput, message, ErrInput, nil)
}

func DecodeError(cause error) *AppError {
	return NewAppError(CodeDecode, constants.StageDecode, "image cannot be decoded", ErrDecode, cause)
}

func RecognitionError(engine string, cause error) *AppError {
	return NewAppError(CodeRecognition, constants.StageText, "recognizer "+engine+" failed", ErrRecognition, cause)
}

func DetectionError(engine string, cause error) *AppError {
	return NewAppError(CodeDetection, constants.StageFace, "detector "+engine+" failed", ErrDetection, cause)
}

func ModelUnavailableError(provider string, cause error) *AppError {
	return NewAppError(CodeModelUnavailable, constants.StageFields, "model provider "+provider+" unavailable", ErrModelUnavailable, cause)
}

func MalformedResponseError(message string, cause error) *AppError {
	return NewAppError(CodeMalformedResponse, constants.StageFields, message, ErrMalformedResponse, cause)
}

func StorageError(stage constants.Stage, message string, cause error) *AppError {
	return NewAppError(CodeStorage, stage, message, ErrStorage, cause)
}

func InternalError(stage constants.Stage, cause error) *AppError {
	return NewAppError(CodeInternal, stage, "internal error", ErrInternal, cause)
}

// AsAppError extracts the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// StageOf returns the stage tag carried by err, or "" when err is untagged.
func StageOf(err error) constants.Stage {
	if ae, ok := AsAppError(err); ok {
		return ae.Stage
	}
	return ""
}

// WithStage re-tags an AppError for the stage that observed it; other errors become internal.
func WithStage(err error, stage constants.Stage) error {
	if err == nil {
		return nil
	}
	if ae, ok := AsAppError(err); ok {
		if ae.Stage == stage {
			return ae
		}
		cp := *ae
		cp.Stage = stage
		return &cp
	}
	return InternalError(stage, err)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
