package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/seantiz/modreg/internal/engine"
	"github.com/seantiz/modreg/internal/loader"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation rejected or failed
	ExitCommandError = 2 // Invalid flags or arguments
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the JSON envelope for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Keys    []string `json:"keys,omitempty"`
}

// Print writes data as a JSON envelope, or calls text in text mode.
func (f *OutputFormatter) Print(data any, text func(w io.Writer) error) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	return text(f.Writer)
}

// Fail reports err in JSON mode and returns it, so the caller can exit with
// the error.
func (f *OutputFormatter) Fail(err error) error {
	if f.Format == "json" {
		_ = json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    errorCode(err),
				Message: err.Error(),
				Keys:    engine.BlockingKeys(err),
			},
		})
	}
	return err
}

func errorCode(err error) string {
	codes := []struct {
		target error
		code   string
	}{
		{engine.ErrNotFound, "not_found"},
		{engine.ErrDuplicateKey, "duplicate_key"},
		{engine.ErrCoreModuleImmutable, "core_module_immutable"},
		{engine.ErrUnmetDependencies, "unmet_dependencies"},
		{engine.ErrHasDependents, "has_dependents"},
		{engine.ErrInvalidSettingsPayload, "invalid_settings_payload"},
		{engine.ErrInvalidVersion, "invalid_version"},
		{engine.ErrInvalidKey, "invalid_key"},
		{loader.ErrIntegrationNotFound, "integration_not_found"},
		{errManagementDisabled, "management_disabled"},
	}
	for _, c := range codes {
		if errors.Is(err, c.target) {
			return c.code
		}
	}
	return "error"
}
