// Package client provides Go clients for the envtree HTTP and gRPC APIs.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alfredjeanlab/envtree/internal/export"
)

// Download is a rendered config file fetched from the server.
type Download struct {
	Format   export.Format
	Filename string
	Content  []byte
}

// Downloader fetches rendered configs. It is implemented by HTTPClient and
// GRPCClient so the download command can pick a transport.
type Downloader interface {
	Download(ctx context.Context, projectID, configID string, format export.Format) (*Download, error)
	Close() error
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a version conflict from the server.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}
