package rhi

import (
	"slices"
	"sync"

	"github.com/gogpu/rhi/internal/cache"
)

// TypeInterner assigns stable small integer identities to reflected types and
// structural type keys, so specialization arguments compare with an integer
// compare instead of a walk over nested type trees.
//
// Ids are allocated sequentially from zero and are never reused while the
// interner lives. Each Device owns one interner; ids from different devices
// are unrelated.
type TypeInterner struct {
	mu     sync.Mutex
	locked bool

	ids   *cache.Table[ComponentKey, ComponentID]
	keys  []ComponentKey
	freed bool
}

// NewTypeInterner creates an empty interner. It is not safe for concurrent use.
func NewTypeInterner() *TypeInterner {
	return newTypeInterner(false)
}

func newTypeInterner(synchronized bool) *TypeInterner {
	return &TypeInterner{
		locked: synchronized,
		ids:    cache.New[ComponentKey, ComponentID](),
	}
}

func (in *TypeInterner) lock() {
	if in.locked {
		in.mu.Lock()
	}
}

func (in *TypeInterner) unlock() {
	if in.locked {
		in.mu.Unlock()
	}
}

// InternType returns the id of a reflected type, keyed by its full name.
// A *SpecializedType is keyed structurally by its base name and interned
// arguments, so it shares an id with the specialized type derived from an
// equivalent binding. It returns InvalidComponentID for a nil type.
func (in *TypeInterner) InternType(t TypeReflection) ComponentID {
	if t == nil {
		return InvalidComponentID
	}
	if st, ok := t.(*SpecializedType); ok && st.Base != nil {
		args := make([]ComponentID, len(st.Args))
		for i, a := range st.Args {
			args[i] = in.InternType(a)
		}
		return in.InternStructural(st.Base.FullName(), args)
	}
	return in.InternStructural(t.FullName(), nil)
}

// InternName returns the id of a type known only by name.
func (in *TypeInterner) InternName(name string) ComponentID {
	return in.InternStructural(name, nil)
}

// InternStructural returns the id of the structural key (name, args),
// allocating the next id on first sight. It returns InvalidComponentID once
// the interner has been freed.
func (in *TypeInterner) InternStructural(name string, args []ComponentID) ComponentID {
	in.lock()
	defer in.unlock()

	if in.freed {
		return InvalidComponentID
	}
	key := ComponentKey{TypeName: name, Args: args}
	if id, ok := in.ids.Get(key); ok {
		return id
	}
	key.Args = slices.Clone(args)
	id := ComponentID(len(in.keys))
	in.keys = append(in.keys, key)
	in.ids.Insert(key, id)
	return id
}

// Lookup returns the key an id was issued for.
func (in *TypeInterner) Lookup(id ComponentID) (ComponentKey, bool) {
	in.lock()
	defer in.unlock()

	if int(id) >= len(in.keys) {
		return ComponentKey{}, false
	}
	k := in.keys[id]
	return ComponentKey{TypeName: k.TypeName, Args: slices.Clone(k.Args)}, true
}

// Len returns the number of issued ids.
func (in *TypeInterner) Len() int {
	in.lock()
	defer in.unlock()
	return len(in.keys)
}

// Free drops the backing table. Every id issued so far becomes meaningless.
func (in *TypeInterner) Free() {
	in.lock()
	defer in.unlock()

	in.ids.Clear()
	in.keys = nil
	in.freed = true
}
