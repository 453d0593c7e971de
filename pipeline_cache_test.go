package rhi

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func argsOf(ids ...ComponentID) SpecializationArgs {
	args := make(SpecializationArgs, len(ids))
	for i, id := range ids {
		args[i] = SpecializationArg{Type: NewType("T", TypeKindStruct), ID: id}
	}
	return args
}

func countingCompile(n *int) CompileFunc {
	return func(base *Pipeline, args SpecializationArgs) (*Pipeline, error) {
		*n++
		return &Pipeline{label: base.label, base: base, args: args.Clone()}, nil
	}
}

func TestPipelineCacheCompilesOncePerKey(t *testing.T) {
	c := NewPipelineCache()
	base := &Pipeline{label: "base", serial: 1, virtual: true}
	var n int

	p1, err := c.GetOrSpecialize(base, argsOf(1, 2), countingCompile(&n))
	require.NoError(t, err)
	p2, err := c.GetOrSpecialize(base, argsOf(1, 2), countingCompile(&n))
	require.NoError(t, err)

	assert.Same(t, p1, p2)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, c.Len())

	s := c.Stats()
	assert.Equal(t, 1, s.Entries)
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.Compiles)
}

func TestPipelineCacheKeyIsOrderedAndPerBase(t *testing.T) {
	c := NewPipelineCache()
	a := &Pipeline{label: "a", serial: 1}
	b := &Pipeline{label: "b", serial: 2}
	var n int

	for _, tc := range []struct {
		base *Pipeline
		args SpecializationArgs
	}{
		{a, argsOf(1, 2)},
		{a, argsOf(2, 1)},
		{b, argsOf(1, 2)},
		{a, argsOf(1)},
		{a, nil},
	} {
		_, err := c.GetOrSpecialize(tc.base, tc.args, countingCompile(&n))
		require.NoError(t, err)
	}
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, c.Len())

	p, ok := c.Lookup(a, argsOf(2, 1))
	require.True(t, ok)
	assert.Equal(t, []ComponentID{2, 1}, p.args.IDs())
}

func TestPipelineCacheFailureNotCached(t *testing.T) {
	c := NewPipelineCache()
	base := &Pipeline{label: "base", serial: 1}
	boom := errors.New("boom")

	_, err := c.GetOrSpecialize(base, argsOf(3), func(*Pipeline, SpecializationArgs) (*Pipeline, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
	_, ok := c.Lookup(base, argsOf(3))
	assert.False(t, ok)

	var n int
	p, err := c.GetOrSpecialize(base, argsOf(3), countingCompile(&n))
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, 1, n, "retry compiles again")

	s := c.Stats()
	assert.Equal(t, uint64(2), s.Compiles)
	assert.Equal(t, uint64(1), s.Failures)
}

func TestPipelineCacheNilResultIsFailure(t *testing.T) {
	c := NewPipelineCache()
	base := &Pipeline{label: "base", serial: 1}

	_, err := c.GetOrSpecialize(base, nil, func(*Pipeline, SpecializationArgs) (*Pipeline, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, ErrCompileFailure)
	assert.Equal(t, 0, c.Len())
}

func TestPipelineCacheAdd(t *testing.T) {
	c := NewPipelineCache()
	base := &Pipeline{label: "base", serial: 1}
	first := &Pipeline{label: "first"}

	assert.True(t, c.Add(base, argsOf(1), first))
	assert.False(t, c.Add(base, argsOf(1), &Pipeline{label: "second"}), "entries are never replaced")

	var n int
	p, err := c.GetOrSpecialize(base, argsOf(1), countingCompile(&n))
	require.NoError(t, err)
	assert.Same(t, first, p)
	assert.Equal(t, 0, n)
}

func TestPipelineCacheFree(t *testing.T) {
	c := NewPipelineCache()
	base := &Pipeline{label: "base", serial: 1}
	var n int
	for i := range 3 {
		_, err := c.GetOrSpecialize(base, argsOf(ComponentID(i)), countingCompile(&n))
		require.NoError(t, err)
	}

	var destroyed int
	failOnce := errors.New("destroy failed")
	err := c.Free(func(*Pipeline) error {
		destroyed++
		if destroyed == 1 {
			return failOnce
		}
		return nil
	})
	require.ErrorIs(t, err, failOnce)
	assert.Equal(t, 3, destroyed)
	assert.Equal(t, 0, c.Len())

	_, err = c.GetOrSpecialize(base, argsOf(0), countingCompile(&n))
	assert.ErrorIs(t, err, ErrDeviceReleased)
	assert.False(t, c.Add(base, argsOf(0), &Pipeline{}))
}

func TestPipelineCacheInvalidArgs(t *testing.T) {
	c := NewPipelineCache()
	var n int
	_, err := c.GetOrSpecialize(nil, nil, countingCompile(&n))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = c.GetOrSpecialize(&Pipeline{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPipelineCacheConcurrentSingleCompile(t *testing.T) {
	c := newPipelineCache(true)
	base := &Pipeline{label: "base", serial: 7}

	var compiles atomic.Int32
	start := make(chan struct{})
	compile := func(b *Pipeline, args SpecializationArgs) (*Pipeline, error) {
		compiles.Add(1)
		time.Sleep(10 * time.Millisecond)
		return &Pipeline{label: b.label, base: b, args: args.Clone()}, nil
	}

	results := make([]*Pipeline, 32)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			<-start
			p, err := c.GetOrSpecialize(base, argsOf(4, 5), compile)
			results[i] = p
			return err
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), compiles.Load())
	for _, p := range results {
		assert.Same(t, results[0], p)
	}
	assert.Equal(t, 1, c.Len())
}

func TestPipelineCacheSynchronizedStats(t *testing.T) {
	c := newPipelineCache(true)
	base := &Pipeline{label: "base", serial: 3}
	var n int

	for range 3 {
		_, err := c.GetOrSpecialize(base, argsOf(1), countingCompile(&n))
		require.NoError(t, err)
	}

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Misses, "a miss is counted once")
	assert.Equal(t, uint64(2), s.Hits)
	assert.Equal(t, uint64(1), s.Compiles)
}

func TestPipelineCacheFreedDuringCompile(t *testing.T) {
	for _, synchronized := range []bool{false, true} {
		t.Run(fmt.Sprintf("synchronized=%v", synchronized), func(t *testing.T) {
			c := newPipelineCache(synchronized)
			base := &Pipeline{label: "base", serial: 5}

			var destroyed []*Pipeline
			destroy := func(p *Pipeline) error {
				destroyed = append(destroyed, p)
				return nil
			}
			var compiled *Pipeline
			compile := func(b *Pipeline, args SpecializationArgs) (*Pipeline, error) {
				require.NoError(t, c.Free(destroy))
				compiled = &Pipeline{label: b.label, base: b, args: args.Clone()}
				return compiled, nil
			}

			_, err := c.GetOrSpecialize(base, argsOf(6), compile)
			require.ErrorIs(t, err, ErrDeviceReleased)
			require.Len(t, destroyed, 1, "the late pipeline is destroyed")
			assert.Same(t, compiled, destroyed[0])
			assert.Equal(t, 0, c.Len())
		})
	}
}

func TestPipelineCacheConcurrentDistinctKeys(t *testing.T) {
	c := newPipelineCache(true)
	base := &Pipeline{label: "base", serial: 9}

	var mu sync.Mutex
	seen := make(map[ComponentID]int)
	compile := func(b *Pipeline, args SpecializationArgs) (*Pipeline, error) {
		mu.Lock()
		seen[args[0].ID]++
		mu.Unlock()
		return &Pipeline{label: b.label, base: b, args: args.Clone()}, nil
	}

	var g errgroup.Group
	for i := range 64 {
		g.Go(func() error {
			_, err := c.GetOrSpecialize(base, argsOf(ComponentID(i%8)), compile)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 8, c.Len())
	for id, n := range seen {
		assert.Equal(t, 1, n, "key %d compiled %d times", id, n)
	}
}
