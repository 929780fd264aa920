package registrycache

import "fmt"

// RegistryFetchError wraps any failure that occurred while fetching a
// schema or one of its references from the injected Fetcher.
type RegistryFetchError struct {
	Cause error
}

func (e *RegistryFetchError) Error() string {
	return fmt.Sprintf("registry fetch: %v", e.Cause)
}

func (e *RegistryFetchError) Unwrap() error {
	return e.Cause
}
