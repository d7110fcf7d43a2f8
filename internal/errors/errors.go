// Package errors provides structured application errors with codes that map onto gRPC status codes.
package errors

import (
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain reported in ErrorInfo details.
const errorDomain = "sidekick.meeting"

// Code classifies an AppError.
type Code int

const (
	CodeUnknown Code = iota
	CodeInternal
	CodeInvalidArgument
	CodeUnavailable
	CodeTimeout
	CodeCanceled
	CodeAudioDevice
	CodeAudioFormat
	CodeTranscriptionFailed
	CodeLLMNotConfigured
	CodeLLMAPIError
	CodeLLMRateLimited
	CodeLLMInvalidResponse
	CodeExportFailed
	CodeConfigInvalid
	CodeConfigMissing
)

var codeNames = map[Code]string{
	CodeUnknown:             "UNKNOWN",
	CodeInternal:            "INTERNAL",
	CodeInvalidArgument:     "INVALID_ARGUMENT",
	CodeUnavailable:         "UNAVAILABLE",
	CodeTimeout:             "TIMEOUT",
	CodeCanceled:            "CANCELED",
	CodeAudioDevice:         "AUDIO_DEVICE",
	CodeAudioFormat:         "AUDIO_INVALID_FORMAT",
	CodeTranscriptionFailed: "AUDIO_TRANSCRIPTION_FAILED",
	CodeLLMNotConfigured:    "LLM_NOT_CONFIGURED",
	CodeLLMAPIError:         "LLM_API_ERROR",
	CodeLLMRateLimited:      "LLM_RATE_LIMITED",
	CodeLLMInvalidResponse:  "LLM_INVALID_RESPONSE",
	CodeExportFailed:        "EXPORT_FAILED",
	CodeConfigInvalid:       "CONFIG_INVALID",
	CodeConfigMissing:       "CONFIG_MISSING",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE_%d", int(c))
}

func parseCode(s string) (Code, bool) {
	for c, name := range codeNames {
		if name == s {
			return c, true
		}
	}
	return CodeUnknown, false
}

var grpcCodeMap = map[Code]codes.Code{
	CodeUnknown:             codes.Unknown,
	CodeInternal:            codes.Internal,
	CodeInvalidArgument:     codes.InvalidArgument,
	CodeUnavailable:         codes.Unavailable,
	CodeTimeout:             codes.DeadlineExceeded,
	CodeCanceled:            codes.Canceled,
	CodeAudioDevice:         codes.Unavailable,
	CodeAudioFormat:         codes.InvalidArgument,
	CodeTranscriptionFailed: codes.Internal,
	CodeLLMNotConfigured:    codes.FailedPrecondition,
	CodeLLMAPIError:         codes.Internal,
	CodeLLMRateLimited:      codes.ResourceExhausted,
	CodeLLMInvalidResponse:  codes.Internal,
	CodeExportFailed:        codes.Internal,
	CodeConfigInvalid:       codes.InvalidArgument,
	CodeConfigMissing:       codes.FailedPrecondition,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// GRPCStatus returns a gRPC status with an ErrorInfo detail attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Message)
	info := &errdetails.ErrorInfo{Reason: e.Code.String(), Domain: errorDomain, Metadata: e.Metadata}
	if withDetails, err := st.WithDetails(info); err == nil {
		return withDetails
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts an AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: CodeUnknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		info, ok := detail.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != errorDomain {
			continue
		}
		if code, ok := parseCode(info.GetReason()); ok {
			return &AppError{Code: code, Message: st.Message(), Metadata: info.GetMetadata(), Cause: err}
		}
	}

	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message(), Cause: err}
}

// grpcToCode maps gRPC codes back to our error codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return CodeInvalidArgument
	case codes.Unavailable:
		return CodeUnavailable
	case codes.DeadlineExceeded:
		return CodeTimeout
	case codes.Canceled:
		return CodeCanceled
	case codes.Internal:
		return CodeInternal
	case codes.FailedPrecondition:
		return CodeConfigMissing
	case codes.ResourceExhausted:
		return CodeLLMRateLimited
	default:
		return CodeUnknown
	}
}

// IsCode checks if an error chain carries a specific error code.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case CodeUnavailable, CodeTimeout, CodeLLMRateLimited:
		return true
	default:
		return false
	}
}
