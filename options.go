package qmap

import (
	"github.com/hashicorp/go-hclog"
)

type config struct {
	hasher Hasher
	logger hclog.Logger
}

func defaultConfig() config {
	return config{
		hasher: FNV1aHasher,
		logger: hclog.NewNullLogger(),
	}
}

// Option configures a map at construction time.
type Option func(*config)

// WithHasher overrides the hash function used to spread keys across
// buckets. Only meaningful for the Hashtable backing.
func WithHasher(h Hasher) Option {
	return func(c *config) {
		if h != nil {
			c.hasher = h
		}
	}
}

// WithLogger sets the logger used for trace/debug output. The default
// discards everything.
func WithLogger(l hclog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
