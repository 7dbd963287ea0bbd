package llm

import (
	"encoding/json"
	"fmt"

	"github.com/kaura24/regaudit/internal/schemas"
)

// CollaboratorError reports a failed or malformed collaborator response.
// Retryable errors may be retried once on the fallback tier; the stage fails
// rather than guessing when the retry also misbehaves.
type CollaboratorError struct {
	Message   string
	Cause     error
	Retryable bool
}

func (e *CollaboratorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("collaborator: %s: %v", e.Message, e.Cause)
	}
	return "collaborator: " + e.Message
}

func (e *CollaboratorError) Unwrap() error {
	return e.Cause
}

// DecodeInto takes a raw collaborator response, strips markdown fences,
// validates against the named schema, and unmarshals into v. Every failure
// mode is a retryable CollaboratorError: malformed output is a collaborator
// fault, never silently patched over.
func DecodeInto(raw, schemaName string, v any) (string, error) {
	cleaned := CleanJSONBlock(raw)
	if cleaned == "" {
		return cleaned, &CollaboratorError{Message: "empty response", Retryable: true}
	}
	if !json.Valid([]byte(cleaned)) {
		return cleaned, &CollaboratorError{Message: "response is not valid JSON", Retryable: true}
	}
	if err := schemas.ValidateName(schemaName, cleaned); err != nil {
		return cleaned, &CollaboratorError{
			Message:   fmt.Sprintf("response violates %s schema", schemaName),
			Cause:     err,
			Retryable: true,
		}
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return cleaned, &CollaboratorError{Message: "failed to decode response", Cause: err, Retryable: true}
	}
	return cleaned, nil
}
