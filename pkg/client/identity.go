package client

import (
	"fmt"
	"os"
	"strings"
)

const (
	// EnvServer names the server URL variable read by NewFromEnv.
	EnvServer = "THREATLENS_SERVER"
	// EnvToken names the bearer token variable read by NewFromEnv.
	EnvToken = "THREATLENS_TOKEN"
	// DefaultServer is used when EnvServer is unset.
	DefaultServer = "http://localhost:8080"
)

// NewFromEnv creates a Client from THREATLENS_SERVER and THREATLENS_TOKEN.
// Options are applied after the environment, so they take precedence.
//
//	c, err := client.NewFromEnv(client.WithTimeout(time.Minute))
func NewFromEnv(opts ...Option) (*Client, error) {
	server := strings.TrimSpace(os.Getenv(EnvServer))
	if server == "" {
		server = DefaultServer
	}

	all := make([]Option, 0, len(opts)+1)
	if token := strings.TrimSpace(os.Getenv(EnvToken)); token != "" {
		all = append(all, WithBearerToken(token))
	}
	all = append(all, opts...)

	c, err := New(server, all...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvServer, err)
	}
	return c, nil
}
