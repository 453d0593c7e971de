package rhi

import (
	"hash/fnv"
	"slices"
)

// ComponentID is an interned identity for a type or structural type key.
type ComponentID uint32

// InvalidComponentID marks an unassigned identity.
const InvalidComponentID ComponentID = 0xFFFFFFFF

// ComponentKey is the interner's de-duplication key. Arguments are positional
// specialization parameters, so their order is significant.
type ComponentKey struct {
	TypeName string
	Args     []ComponentID
}

// Hash combines the name hash with a commutative fold over the argument ids.
// Equal resolves the collisions the fold allows.
func (k ComponentKey) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(k.TypeName)) // fnv.Write never returns an error
	return h.Sum64() + foldIDs(k.Args)
}

// Equal requires an identical name and ordered argument sequence.
func (k ComponentKey) Equal(o ComponentKey) bool {
	return k.TypeName == o.TypeName && slices.Equal(k.Args, o.Args)
}

// PipelineKey identifies a specialized pipeline: a base pipeline identity
// plus the ordered specialization argument ids.
type PipelineKey struct {
	Base *Pipeline
	Args []ComponentID
}

// Hash combines the base pipeline's serial with a fold over the argument ids.
func (k PipelineKey) Hash() uint64 {
	var serial uint64
	if k.Base != nil {
		serial = k.Base.serial
	}
	return mix64(serial) + foldIDs(k.Args)
}

// Equal requires the same base pipeline and ordered argument sequence.
func (k PipelineKey) Equal(o PipelineKey) bool {
	return k.Base == o.Base && slices.Equal(k.Args, o.Args)
}

// foldIDs is an order-insensitive fold; positional equality is checked by Equal.
func foldIDs(ids []ComponentID) uint64 {
	var acc uint64
	for _, id := range ids {
		acc += mix64(uint64(id) + 1)
	}
	return acc
}

// mix64 is the splitmix64 finalizer.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
