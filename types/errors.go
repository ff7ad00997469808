// types/errors.go
package types

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates a configuration error
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnection indicates the tool server or model endpoint could not be reached
	ErrConnection = errors.New("connection failed")

	// ErrProtocol indicates a malformed stream or tool listing
	ErrProtocol = errors.New("protocol error")

	// ErrArgument indicates tool-call arguments failed to parse or validate
	ErrArgument = errors.New("invalid tool arguments")

	// ErrRemote indicates the tool server answered with an error
	ErrRemote = errors.New("remote tool error")

	// ErrTimeout indicates a tool call or model stream ran past its deadline
	ErrTimeout = errors.New("timed out")

	// ErrRoundLimit indicates a turn was cut off while the model still wanted tools
	ErrRoundLimit = errors.New("tool round limit reached")
)

// ConfigError wraps configuration-related errors
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error in %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() []error {
	return unwrapKind(ErrInvalidConfig, e.Err)
}

// BridgeError wraps errors raised while driving a conversation turn
type BridgeError struct {
	Operation string
	Kind      error
	Message   string
	Err       error
}

func (e *BridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bridge error during %s: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("bridge error during %s: %s", e.Operation, e.Message)
}

func (e *BridgeError) Unwrap() []error {
	return unwrapKind(e.Kind, e.Err)
}

// LLMError wraps errors from the chat-completion endpoint
type LLMError struct {
	Operation string
	Kind      error
	Message   string
	Err       error
}

func (e *LLMError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM error during %s: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("LLM error during %s: %s", e.Operation, e.Message)
}

func (e *LLMError) Unwrap() []error {
	return unwrapKind(e.Kind, e.Err)
}

// ToolError wraps errors from listing or invoking remote tools
type ToolError struct {
	Tool    string
	Kind    error
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool error in %s: %s: %v", e.Tool, e.Message, e.Err)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

func (e *ToolError) Unwrap() []error {
	return unwrapKind(e.Kind, e.Err)
}

func unwrapKind(kind, err error) []error {
	var errs []error
	if kind != nil {
		errs = append(errs, kind)
	}
	if err != nil {
		errs = append(errs, err)
	}
	return errs
}

// IsRecoverable reports whether a turn failing with err should hand control
// back to the prompt instead of ending the process
func IsRecoverable(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrConnection),
		errors.Is(err, ErrProtocol),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrRoundLimit),
		errors.Is(err, context.Canceled):
		return true
	}
	return false
}
