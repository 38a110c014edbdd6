package engine

import (
	"errors"
	"fmt"
)

// Error codes surfaced to callers.
const (
	CodeNotIndexed        = "NOT_INDEXED"
	CodeTransportError    = "TRANSPORT_ERROR"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeSchemaError       = "SCHEMA_ERROR"
	CodePersistenceError  = "PERSISTENCE_ERROR"
	CodeCompileError      = "COMPILE_ERROR"
	CodeRuntimeEvaluation = "RUNTIME_EVALUATION_ERROR"
	CodeInvalidPayload    = "INVALID_PAYLOAD"
	CodeNotFound          = "NOT_FOUND"
	CodeIndexFailed       = "INDEX_FAILED"
	CodeInternal          = "INTERNAL_ERROR"
)

const rephraseSuggestion = "Try rephrasing your query or ask for the rules in JSON format."

type AppError struct {
	Code        string        `json:"code"`
	Status      int           `json:"-"`
	Message     string        `json:"message"`
	RawResponse string        `json:"raw_response,omitempty"`
	Suggestion  string        `json:"suggestion,omitempty"`
	Details     []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

// ErrorCode returns the AppError code carried by err, or "".
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func NotIndexedError(msg string) *AppError {
	return &AppError{Code: CodeNotIndexed, Status: 409, Message: msg}
}

func TransportError(format string, args ...any) *AppError {
	return &AppError{Code: CodeTransportError, Status: 502, Message: fmt.Sprintf(format, args...)}
}

func MalformedResponseError(raw string) *AppError {
	return &AppError{
		Code:        CodeMalformedResponse,
		Status:      422,
		Message:     "The model response is not valid JSON",
		RawResponse: raw,
		Suggestion:  rephraseSuggestion,
	}
}

func SchemaError(raw string, details []ErrorDetail) *AppError {
	return &AppError{
		Code:        CodeSchemaError,
		Status:      422,
		Message:     "The model response does not match the rule schema",
		RawResponse: raw,
		Suggestion:  rephraseSuggestion,
		Details:     details,
	}
}

func InvalidPayloadError(msg string, details ...ErrorDetail) *AppError {
	return &AppError{Code: CodeInvalidPayload, Status: 400, Message: msg, Details: details}
}

func NotFoundError(entity string, id any) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s with id %v not found", entity, id),
	}
}

func IndexFailedError(err error) *AppError {
	return &AppError{Code: CodeIndexFailed, Status: 422, Message: fmt.Sprintf("Indexing failed: %v", err)}
}

func InternalError(msg string) *AppError {
	return &AppError{Code: CodeInternal, Status: 500, Message: msg}
}
