package strategy

import (
	"errors"
	"fmt"
)

// ErrStrategyInvalid is wrapped by every definition error. It is never retryable.
var ErrStrategyInvalid = errors.New("strategy invalid")

// Error codes carried by InvalidError.
const (
	CodeEmptyStrategy         = "EMPTY_STRATEGY"
	CodeUnknownBlockReference = "UNKNOWN_BLOCK_REFERENCE"
	CodeUnsupportedBlockType  = "UNSUPPORTED_BLOCK_TYPE"
	CodeCycleDetected         = "CYCLE_DETECTED"
	CodeInvalidConnection     = "INVALID_CONNECTION"
	CodeInvalidBlock          = "INVALID_BLOCK"
)

// InvalidError describes why a definition cannot be interpreted.
type InvalidError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	BlockID string `json:"block_id,omitempty"`
}

func (e *InvalidError) Error() string {
	if e.BlockID != "" {
		return fmt.Sprintf("%s: %s (block %s)", e.Code, e.Message, e.BlockID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InvalidError) Unwrap() error { return ErrStrategyInvalid }

func invalid(code, blockID, format string, args ...any) *InvalidError {
	return &InvalidError{Code: code, BlockID: blockID, Message: fmt.Sprintf(format, args...)}
}

// AsInvalid extracts the InvalidError from err, if any.
func AsInvalid(err error) (*InvalidError, bool) {
	var ie *InvalidError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
