package upload

import (
	"net/http"
	"time"
)

const (
	// PresignPath issues a Descriptor.
	PresignPath = "/uploads/presigned-url"
	// ConfirmPath records a completed transfer.
	ConfirmPath = "/uploads/confirm"
	// FileField is the form field holding the file content.
	FileField = "file"
)

// Config holds configuration for the storage transfer.
type Config struct {
	// HTTPClient sends the file to the storage provider. It never carries
	// the origin's credentials.
	// If nil, DefaultHTTPClient is used.
	HTTPClient *http.Client

	// StallThreshold aborts a transfer that made no progress for this long.
	// Zero disables stall detection.
	// Default: 30 seconds
	StallThreshold time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		StallThreshold: 30 * time.Second,
	}
}

// DefaultHTTPClient creates an HTTP client for storage transfers.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		// No timeout - transfers are bounded by the caller's context and stall detection
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}
