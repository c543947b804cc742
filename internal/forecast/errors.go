package forecast

import "fmt"

// ProviderError represents a failure talking to the forecast provider:
// transport error, non-200 status, or an undecodable response.
type ProviderError struct {
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("forecast provider error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("forecast provider error: %s", e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error
func NewProviderError(message string, err error) *ProviderError {
	return &ProviderError{
		Message: message,
		Err:     err,
	}
}
