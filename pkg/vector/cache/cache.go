// Package cache memoizes search responses in front of a vector.Store.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/vectorstore/pkg/vector"
)

const (
	DefaultMaxEntries = 100
	DefaultTTL        = 300 * time.Second
	DefaultKeyPrefix  = "vectorstore:"
)

// Config selects and sizes the cache tier.
type Config struct {
	Enabled    bool            `toml:"enabled"`
	Type       string          `toml:"type"` // lru 或 redis
	MaxEntries int             `toml:"max_entries"`
	TTL        vector.Duration `toml:"ttl"`
	KeyPrefix  string          `toml:"key_prefix"`
}

// Validate fills defaults and checks the tier type.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Type == "" {
		c.Type = "lru"
	}
	if c.Type != "lru" && c.Type != "redis" {
		return errors.Errorf("type must be lru or redis, got %q", c.Type)
	}
	if c.MaxEntries < 0 {
		return errors.New("max_entries must not be negative")
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.TTL.Duration < 0 {
		return errors.New("ttl must not be negative")
	}
	if c.TTL.Duration == 0 {
		c.TTL.Duration = DefaultTTL
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	return nil
}

// Stats reports cache effectiveness. Entries is -1 when the tier cannot
// count them cheaply.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// HitRate is hits / (hits + misses).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache stores search responses by key and tracks a generation per index.
type Cache interface {
	Get(ctx context.Context, key string) (*vector.SearchResponse, bool, error)
	Set(ctx context.Context, key string, resp *vector.SearchResponse) error
	// Generation returns the current generation of index.
	Generation(ctx context.Context, index string) (uint64, error)
	// Invalidate advances the generation of index, orphaning its entries.
	Invalidate(ctx context.Context, index string) error
	Purge(ctx context.Context) error
	Stats() Stats
}

// Key derives the cache key of req at the given index generation.
func Key(req vector.SearchRequest, generation uint64) (string, error) {
	h := sha256.New()

	writeString := func(s string) {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	writeUint := func(u uint64) {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], u)
		h.Write(n[:])
	}

	writeString(req.Index)
	writeUint(generation)
	writeUint(uint64(req.Limit()))

	writeUint(uint64(len(req.Vector)))
	for _, f := range req.Vector {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
		h.Write(b[:])
	}

	if req.Filter != nil {
		canonical, err := req.Filter.CanonicalJSON()
		if err != nil {
			return "", err
		}
		writeString(string(canonical))
	} else {
		writeString("")
	}

	writeString(string(req.Metric))
	writeString(strconv.FormatBool(req.IncludeVectors) + strconv.FormatBool(req.WantMetadata()))
	if req.ScoreThreshold != nil {
		writeString(strconv.FormatUint(uint64(math.Float32bits(*req.ScoreThreshold)), 16))
	} else {
		writeString("-")
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
