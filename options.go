package levelhash

import (
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// LevelSizeDefault is the default top-level exponent s: L0 gets 2^s
// buckets, L1 gets 2^(s-1).
const LevelSizeDefault = 8

// LevelSizeMax bounds level_size. 24 keeps 2^s * bucket_size * 8 within
// 2^40 bytes at the default bucket_size of 10.
const LevelSizeMax = 24

// BucketSizeDefault is the default number of slots per bucket.
const BucketSizeDefault = 10

// BucketSizeMax bounds bucket_size.
const BucketSizeMax = 255

// LoadFactorThresholdDefault triggers auto-expansion.
const LoadFactorThresholdDefault = 0.9

// HashFunc computes a 64-bit hash of data under the given seed. The two
// hash functions used by a Handle are caller-injected; the engine treats
// them as opaque values, never as a dispatch interface.
type HashFunc func(seed uint64, data []byte) uint64

// Options configures a Handle. Zero-value fields are replaced by
// DefaultOptions' choices except where noted.
type Options struct {
	// IndexDir is the directory the three index files and the lock file
	// live in. Required.
	IndexDir string
	// IndexName is the base name N; files are named N.index,
	// N.index._keymap, N.index._meta, N.index.lock. Required.
	IndexName string

	// LevelSize is s; L0 has 2^s buckets, L1 has 2^(s-1). Default 8, max
	// LevelSizeMax. Reopening an existing index ignores this field in
	// favor of the stored value, except that Clear resets the table to it.
	LevelSize uint8
	// BucketSize is slots per bucket b. Default 10. Only meaningful on
	// first creation.
	BucketSize uint8

	// UniqueKeys enforces at most one live record per key. Default true.
	UniqueKeys *bool
	// AutoExpand triggers Expand automatically when LoadFactorThreshold
	// is reached. Default true.
	AutoExpand *bool
	// LoadFactorThreshold is the occupancy fraction, in [0.5, 1.0], that
	// triggers auto-expansion. Default 0.9.
	LoadFactorThreshold float64

	// Seed1, Seed2 are the two non-zero 64-bit seeds passed to HashFn1/2.
	// Default: derived from a process-local random source.
	Seed1, Seed2 uint64
	// HashFn1, HashFn2 are the two hash functions. Default: DefaultHashFunc
	// (xxhash64 seeded per Seed1/Seed2).
	HashFn1, HashFn2 HashFunc

	// Logger receives structured diagnostic events. A nil Logger disables
	// logging entirely; no option is required to silence it.
	Logger *zap.SugaredLogger
}

// DefaultOptions returns an Options with every field populated to its
// documented default except IndexDir/IndexName, which the caller must
// set.
func DefaultOptions(indexDir, indexName string) Options {
	uniqueKeys := true
	autoExpand := true
	return Options{
		IndexDir:            indexDir,
		IndexName:           indexName,
		LevelSize:           LevelSizeDefault,
		BucketSize:          BucketSizeDefault,
		UniqueKeys:          &uniqueKeys,
		AutoExpand:          &autoExpand,
		LoadFactorThreshold: LoadFactorThresholdDefault,
		Seed1:               randomSeed(),
		Seed2:               randomSeed(),
		HashFn1:             DefaultHashFunc,
		HashFn2:             DefaultHashFunc,
	}
}

func randomSeed() uint64 {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		if s := r.Uint64(); s != 0 {
			return s
		}
	}
}

// normalize fills any zero-valued field left unset by the caller with its
// default, then validates the result.
func (o *Options) normalize() *Error {
	if o.IndexDir == "" {
		return newErr(KindInvalidArg, "Open", nil).WithDetail("field", "IndexDir")
	}
	if o.IndexName == "" {
		return newErr(KindInvalidArg, "Open", nil).WithDetail("field", "IndexName")
	}
	if o.LevelSize == 0 {
		o.LevelSize = LevelSizeDefault
	}
	if o.LevelSize > LevelSizeMax {
		return newErr(KindInvalidArg, "Open", nil).
			WithDetail("field", "LevelSize").WithDetail("max", LevelSizeMax)
	}
	if o.BucketSize == 0 {
		o.BucketSize = BucketSizeDefault
	}
	if o.UniqueKeys == nil {
		v := true
		o.UniqueKeys = &v
	}
	if o.AutoExpand == nil {
		v := true
		o.AutoExpand = &v
	}
	if o.LoadFactorThreshold == 0 {
		o.LoadFactorThreshold = LoadFactorThresholdDefault
	}
	if o.LoadFactorThreshold < 0.5 || o.LoadFactorThreshold > 1.0 {
		return newErr(KindInvalidArg, "Open", nil).WithDetail("field", "LoadFactorThreshold")
	}
	if o.Seed1 == 0 {
		o.Seed1 = randomSeed()
	}
	if o.Seed2 == 0 {
		o.Seed2 = randomSeed()
	}
	if o.HashFn1 == nil {
		o.HashFn1 = DefaultHashFunc
	}
	if o.HashFn2 == nil {
		o.HashFn2 = DefaultHashFunc
	}
	return nil
}

func (o *Options) logger() *zap.SugaredLogger {
	return o.Logger
}
