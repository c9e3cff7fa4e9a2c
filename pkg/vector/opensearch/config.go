package opensearch

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/Zereker/vectorstore/pkg/vector/remote"
)

// Config configures the OpenSearch backend. Endpoint may list several
// comma-separated node addresses.
type Config struct {
	remote.Config

	Engine   string `toml:"engine"` // lucene, faiss 或 nmslib
	Shards   int    `toml:"shards"`
	Replicas int    `toml:"replicas"`
}

// Validate fills defaults.
func (c *Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.Engine == "" {
		c.Engine = "lucene"
	}
	switch c.Engine {
	case "lucene", "faiss", "nmslib":
	default:
		return errors.Errorf("unknown engine %q", c.Engine)
	}
	if c.Shards <= 0 {
		c.Shards = 1
	}
	if c.Replicas < 0 {
		return errors.New("replicas must not be negative")
	}
	return nil
}

func (c *Config) addresses() []string {
	var out []string
	for _, addr := range strings.Split(c.Endpoint, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
