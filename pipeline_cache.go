package rhi

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"github.com/gogpu/rhi/internal/cache"
)

// CompileFunc compiles base specialized with args. It runs only on a cache
// miss.
type CompileFunc func(base *Pipeline, args SpecializationArgs) (*Pipeline, error)

// PipelineCache maps (base pipeline, ordered specialization argument ids) to
// specialized pipelines. Entries are never evicted individually; the cache is
// dropped as a unit with Free, together with the interner whose ids key it.
//
// A cache from NewPipelineCache is not safe for concurrent use. A device
// created with WithConcurrentAccess uses a synchronized cache in which
// concurrent misses on one key share a single compile.
type PipelineCache struct {
	mu     sync.Mutex
	locked bool
	flight singleflight.Group

	table    *cache.Table[PipelineKey, *Pipeline]
	compiles uint64
	failures uint64
	freed    bool
	destroy  func(*Pipeline) error
}

// PipelineCacheStats contains pipeline cache statistics.
type PipelineCacheStats struct {
	Entries  int
	Hits     uint64
	Misses   uint64
	Compiles uint64
	Failures uint64
}

// NewPipelineCache creates an empty cache for single-threaded use.
func NewPipelineCache() *PipelineCache {
	return newPipelineCache(false)
}

func newPipelineCache(synchronized bool) *PipelineCache {
	return &PipelineCache{
		locked: synchronized,
		table:  cache.New[PipelineKey, *Pipeline](),
	}
}

func (c *PipelineCache) lock() {
	if c.locked {
		c.mu.Lock()
	}
}

func (c *PipelineCache) unlock() {
	if c.locked {
		c.mu.Unlock()
	}
}

// GetOrSpecialize returns the pipeline cached for (base, args) or compiles,
// inserts and returns it. A failed compile is returned to the caller and
// nothing is cached, so a later call retries.
func (c *PipelineCache) GetOrSpecialize(base *Pipeline, args SpecializationArgs, compile CompileFunc) (*Pipeline, error) {
	if base == nil {
		return nil, invalidArgf("nil base pipeline")
	}
	if compile == nil {
		return nil, invalidArgf("nil compile function")
	}
	key := PipelineKey{Base: base, Args: args.IDs()}
	if !c.locked {
		if c.freed {
			return nil, ErrDeviceReleased
		}
		p, _, err := c.table.GetOrCreate(key, func() (*Pipeline, error) {
			p, err := c.compile(base, args, compile)
			if err == nil && c.freed {
				c.discard(p, c.destroy)
				return nil, ErrDeviceReleased
			}
			return p, err
		})
		return p, err
	}

	c.mu.Lock()
	if c.freed {
		c.mu.Unlock()
		return nil, ErrDeviceReleased
	}
	if p, ok := c.table.Get(key); ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(flightKey(key), func() (any, error) {
		// A flight that finished between the miss above and Do may have
		// inserted the entry already.
		c.mu.Lock()
		if p, ok := c.table.Peek(key); ok {
			c.mu.Unlock()
			return p, nil
		}
		c.mu.Unlock()

		p, err := c.compile(base, args, compile)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.freed {
			destroy := c.destroy
			c.mu.Unlock()
			c.discard(p, destroy)
			return nil, ErrDeviceReleased
		}
		c.table.Insert(key, p)
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Pipeline), nil
}

// compile runs fn and keeps the counters. It is called without c.mu held.
func (c *PipelineCache) compile(base *Pipeline, args SpecializationArgs, fn CompileFunc) (*Pipeline, error) {
	Logger().Debug("rhi: specializing pipeline",
		"pipeline", base.label,
		"args", args.Names())

	p, err := fn(base, args)
	if err == nil && p == nil {
		err = fmt.Errorf("%w: compile of %q returned no pipeline", ErrCompileFailure, base.label)
	}

	c.lock()
	defer c.unlock()
	c.compiles++
	if err != nil {
		c.failures++
		return nil, err
	}
	return p, nil
}

// discard destroys a pipeline whose compile finished after Free. Nothing
// else will ever see it.
func (c *PipelineCache) discard(p *Pipeline, destroy func(*Pipeline) error) {
	if destroy == nil {
		return
	}
	if err := destroy(p); err != nil {
		Logger().Warn("rhi: destroy pipeline compiled after free",
			"pipeline", p.label, "err", err)
	}
}

func flightKey(k PipelineKey) string {
	return fmt.Sprintf("%d:%v", k.Base.serial, k.Args)
}

// Lookup returns the pipeline cached for (base, args) without compiling.
func (c *PipelineCache) Lookup(base *Pipeline, args SpecializationArgs) (*Pipeline, bool) {
	c.lock()
	defer c.unlock()
	return c.table.Get(PipelineKey{Base: base, Args: args.IDs()})
}

// Add inserts a pipeline compiled elsewhere. It reports false and leaves the
// cache unchanged if (base, args) is already present.
func (c *PipelineCache) Add(base *Pipeline, args SpecializationArgs, p *Pipeline) bool {
	c.lock()
	defer c.unlock()
	if c.freed || base == nil || p == nil {
		return false
	}
	return c.table.Insert(PipelineKey{Base: base, Args: args.IDs()}, p)
}

// Len returns the number of cached pipelines.
func (c *PipelineCache) Len() int {
	c.lock()
	defer c.unlock()
	return c.table.Len()
}

// Stats returns cache statistics.
func (c *PipelineCache) Stats() PipelineCacheStats {
	c.lock()
	defer c.unlock()
	s := c.table.Stats()
	return PipelineCacheStats{
		Entries:  s.Len,
		Hits:     s.Hits,
		Misses:   s.Misses,
		Compiles: c.compiles,
		Failures: c.failures,
	}
}

// Free drops every entry, passing each cached pipeline to destroy if it is
// not nil. The cache rejects further specialization afterwards, and a compile
// still in flight hands its result to destroy instead of inserting it.
// Errors from destroy are combined.
func (c *PipelineCache) Free(destroy func(*Pipeline) error) error {
	c.lock()
	defer c.unlock()

	var err error
	if destroy != nil {
		c.table.Range(func(_ PipelineKey, p *Pipeline) bool {
			err = multierr.Append(err, destroy(p))
			return true
		})
	}
	c.table.Clear()
	c.freed = true
	c.destroy = destroy
	return err
}
