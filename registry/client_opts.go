package registry

import (
	"log/slog"

	"oras.land/oras-go/v2/registry/remote/credentials"

	"github.com/meigma/devarchive"
)

// Option configures a Client.
type Option func(*Client)

// WithCredentialStore sets the credential store for authentication.
func WithCredentialStore(store credentials.Store) Option {
	return func(c *Client) {
		c.credStore = store
	}
}

// WithDockerConfig reads credentials from the docker config file
// (~/.docker/config.json or $DOCKER_CONFIG). If the file cannot be loaded
// the client stays anonymous.
func WithDockerConfig() Option {
	return func(c *Client) {
		store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
		if err != nil {
			return
		}
		c.credStore = store
	}
}

// WithPlainHTTP uses plain HTTP (no TLS), for local development registries.
func WithPlainHTTP(enabled bool) Option {
	return func(c *Client) {
		c.plainHTTP = enabled
	}
}

// WithUserAgent sets the User-Agent header for requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger sets the logger for registry operations.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithSourceWrapper wraps the byte source of every archive opened by
// OpenRemote, for example with a block cache.
func WithSourceWrapper(wrap func(devarchive.ByteSource) (devarchive.ByteSource, error)) Option {
	return func(c *Client) {
		c.wrap = wrap
	}
}
