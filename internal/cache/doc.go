// Package cache provides the program-lifetime tables behind rhi's type
// interner and pipeline cache.
//
// # Table[K, V]
//
// A hash-bucketed map for composite keys that carry ordered id lists and
// therefore cannot be Go map keys. Keys implement [Key]: a Hash used to pick
// a bucket and an Equal used to resolve collisions.
//
//	t := cache.New[pipelineKey, *Pipeline]()
//	p, created, err := t.GetOrCreate(key, compile)
//
// Entries are never evicted one at a time. Ids stored in keys are only
// meaningful for the device that issued them, so tables are torn down as a
// unit with Clear.
//
// # Thread Safety
//
// Table is not synchronized. rhi serializes access itself when a device is
// created with concurrent access enabled.
package cache
