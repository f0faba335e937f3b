package runner

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sony/gobreaker"

	"strategylab/services/market"
	"strategylab/services/strategy"
)

// APIError is the error body returned to API and CLI callers.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return e.Code + ": " + e.Message
}

const (
	CodeInvalidStrategy = "INVALID_STRATEGY"
	CodeInvalidParams   = "INVALID_PARAMS"
	CodeDataNotFound    = "DATA_NOT_FOUND"
	CodeExecutionFailed = "EXECUTION_FAILED"
	CodeTimeout         = "TIMEOUT"
	CodeOverloaded      = "OVERLOADED"
)

// ErrInvalidParams is wrapped by request validation failures.
var ErrInvalidParams = errors.New("invalid parameters")

func invalidParams(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}

// Classify maps any run error to an APIError.
func Classify(err error) *APIError {
	if err == nil {
		return nil
	}
	var api *APIError
	if errors.As(err, &api) {
		return api
	}
	if ie, ok := strategy.AsInvalid(err); ok {
		return &APIError{Code: CodeInvalidStrategy, Message: "Strategy compilation failed", Details: ie.Error()}
	}
	switch {
	case errors.Is(err, ErrInvalidParams):
		return &APIError{Code: CodeInvalidParams, Message: "Invalid parameters provided", Details: err.Error()}
	case errors.Is(err, market.ErrNoData), errors.Is(err, os.ErrNotExist):
		return &APIError{Code: CodeDataNotFound, Message: "Required data not available", Details: err.Error()}
	case errors.Is(err, ErrQueueFull):
		return &APIError{Code: CodeOverloaded, Message: "Too many backtests in flight", Details: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &APIError{Code: CodeTimeout, Message: "Operation timed out", Details: err.Error()}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &APIError{Code: CodeExecutionFailed, Message: "Market data source unavailable", Details: err.Error()}
	}
	return &APIError{Code: CodeExecutionFailed, Message: "Strategy execution failed", Details: err.Error()}
}
