package postgres

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/Zereker/vectorstore/pkg/vector/remote"
)

// Config configures the PostgreSQL backend. Endpoint is host:port or a full
// postgres:// URL.
type Config struct {
	remote.Config

	SSLMode string `toml:"ssl_mode"`
	Schema  string `toml:"schema"`
}

// Validate fills defaults.
func (c *Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.Schema == "" {
		c.Schema = "public"
	}
	if !strings.Contains(c.Endpoint, "://") && c.Database == "" {
		return errors.New("database is required")
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	if strings.Contains(c.Endpoint, "://") {
		return c.Endpoint
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     c.Endpoint,
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	if c.Auth.Username != "" {
		u.User = url.UserPassword(c.Auth.Username, c.Auth.Password)
	}
	return u.String()
}

func (c *Config) redactedEndpoint() string {
	if !strings.Contains(c.Endpoint, "://") {
		return c.Endpoint
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return ""
	}
	return u.Redacted()
}
