package marketplace

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is returned for non-2xx marketplace replies. The body is kept,
// truncated, because the marketplace reports validation problems as plain
// JSON bodies rather than structured error codes.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketplace: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is an APIError for a missing resource.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
