package node

import (
	"fmt"
	"time"
)

const (
	DefaultRetryAmount    = 5
	DefaultRetryDelay     = 5 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultClientName     = "lavafries"
)

// Options describes one audio node and how to reach it. Host is the node's unique key.
type Options struct {
	Host           string
	Port           int
	Password       string
	Secure         bool
	RetryAmount    int
	RetryDelay     time.Duration
	RequestTimeout time.Duration

	// Identity headers sent on connect.
	UserID     string
	ShardCount int
	ClientName string
}

// WithDefaults returns a copy with unset optional fields filled in.
func (o Options) WithDefaults() Options {
	if o.RetryAmount == 0 {
		o.RetryAmount = DefaultRetryAmount
	}

	if o.RetryDelay == 0 {
		o.RetryDelay = DefaultRetryDelay
	}

	if o.RequestTimeout == 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}

	if o.ClientName == "" {
		o.ClientName = DefaultClientName
	}

	if o.ShardCount == 0 {
		o.ShardCount = 1
	}

	return o
}

// Validate checks that the required fields are set.
func (o Options) Validate() error {
	if o.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidOptions)
	}

	if o.Port <= 0 || o.Port > 65535 {
		return fmt.Errorf("%w: port %d is out of range", ErrInvalidOptions, o.Port)
	}

	if o.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidOptions)
	}

	if o.RetryAmount < 0 {
		return fmt.Errorf("%w: retry amount must not be negative", ErrInvalidOptions)
	}

	if o.RetryDelay < 0 {
		return fmt.Errorf("%w: retry delay must not be negative", ErrInvalidOptions)
	}

	return nil
}

func (o Options) socketURL() string {
	scheme := "ws"
	if o.Secure {
		scheme = "wss"
	}

	return fmt.Sprintf("%s://%s:%d/", scheme, o.Host, o.Port)
}

func (o Options) restURL(path string) string {
	scheme := "http"
	if o.Secure {
		scheme = "https"
	}

	return fmt.Sprintf("%s://%s:%d%s", scheme, o.Host, o.Port, path)
}
