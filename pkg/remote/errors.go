package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRemote matches every failure reported by the API itself,
	// whether a non-2xx status or a success:false envelope.
	ErrRemote = errors.New("remote: request failed")

	// ErrUnauthenticated matches APIErrors with status 401.
	ErrUnauthenticated = errors.New("remote: unauthenticated")

	// ErrTempID is returned before any request is made when a client-minted
	// id would end up in a request path.
	ErrTempID = errors.New("remote: temporary id cannot be sent")
)

// APIError is a failure reported by the API.
type APIError struct {
	Status  int
	Message string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("remote: %d %s", e.Status, e.Message)
}

// Is lets errors.Is match ErrRemote and, for 401 responses, ErrUnauthenticated.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRemote:
		return true
	case ErrUnauthenticated:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
