package qdrant

import (
	"net"
	"strconv"

	"github.com/pkg/errors"

	"github.com/Zereker/vectorstore/pkg/vector/remote"
)

const (
	defaultPort           = 6334
	defaultMaxMessageSize = 50 * 1024 * 1024
)

// Config configures the Qdrant backend. Endpoint is the gRPC host:port.
type Config struct {
	remote.Config

	UseTLS         bool `toml:"use_tls"`
	MaxMessageSize int  `toml:"max_message_size"`
}

// Validate fills defaults.
func (c *Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if _, _, err := c.hostPort(); err != nil {
		return err
	}
	return nil
}

func (c *Config) hostPort() (string, int, error) {
	host, portStr, err := net.SplitHostPort(c.Endpoint)
	if err != nil {
		// bare host
		return c.Endpoint, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, errors.Errorf("invalid qdrant port %q", portStr)
	}
	return host, port, nil
}
