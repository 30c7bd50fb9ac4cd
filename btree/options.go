package btree

import (
	"log/slog"

	"github.com/hupe1980/oodb/resource"
)

const (
	// MinDegree is the smallest supported order.
	MinDegree = 3
	// MaxDegree is bounded by the 16-bit key count of a page.
	MaxDegree = 1 << 15
	// DefaultDegree is used when no degree is configured.
	DefaultDegree = 64
	// DefaultNodeCacheSize is the number of decoded clean nodes kept in memory.
	DefaultNodeCacheSize = 4096
)

// Policy selects how many values a key maps to.
type Policy uint8

const (
	// SingleValue maps each key to exactly one value.
	SingleValue Policy = iota + 1
	// MultiValue maps each key to a list of values in insertion order.
	MultiValue
)

func (p Policy) String() string {
	switch p {
	case SingleValue:
		return "single"
	case MultiValue:
		return "multi"
	default:
		return "unknown"
	}
}

// DuplicateKeyPolicy decides what Insert does with an existing key in a
// SingleValue tree.
type DuplicateKeyPolicy uint8

const (
	// Overwrite replaces the value of an existing key.
	Overwrite DuplicateKeyPolicy = iota
	// Reject fails with ErrDuplicateKey.
	Reject
)

// Option configures a Tree.
type Option func(*options)

type options struct {
	degree    int
	policy    Policy
	dup       DuplicateKeyPolicy
	cacheSize int
	rc        *resource.Controller
	logger    *slog.Logger
}

func defaultOptions() options {
	return options{
		degree:    DefaultDegree,
		policy:    SingleValue,
		dup:       Overwrite,
		cacheSize: DefaultNodeCacheSize,
	}
}

// WithDegree sets the maximum number of children of an internal node.
func WithDegree(degree int) Option {
	return func(o *options) { o.degree = degree }
}

// WithPolicy selects single- or multi-value keys.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithDuplicateKeyPolicy sets the duplicate key behaviour of SingleValue
// trees.
func WithDuplicateKeyPolicy(p DuplicateKeyPolicy) Option {
	return func(o *options) { o.dup = p }
}

// WithNodeCacheSize sets how many decoded clean nodes stay in memory.
func WithNodeCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithResourceController charges decoded node memory to rc.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) { o.rc = rc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
