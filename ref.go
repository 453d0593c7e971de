package rhi

import "weak"

// Owner is an object whose lifetime is governed by an explicit ownership
// count rather than by the garbage collector. Device is the Owner of every
// object it creates.
type Owner interface {
	// Retain adds an ownership claim.
	Retain()
	// Release drops an ownership claim. The owner is torn down when the
	// last claim is dropped.
	Release()
	// Alive reports whether the owner has not been torn down yet.
	Alive() bool
}

// BreakableRef is a reference from a dependent object to its owner that is
// either strong (holding an ownership claim) or weak (a non-owning observer),
// never both at once.
//
// It resolves the cycle between a device and the objects it creates: both sides
// hold strong references, and the dependent breaks its side when its last
// public reference is dropped. Breaking earlier is a use-after-free hazard: if
// the dependent's claim is the last one, the owner is torn down immediately,
// so the dependent must not touch the owner after BreakStrong returns.
//
// The zero value holds no relation. BreakableRef is not safe for concurrent use.
type BreakableRef[T any, PT interface {
	*T
	Owner
}] struct {
	strong PT
	weak   weak.Pointer[T]
}

// SetStrong replaces the held relation with an ownership claim on owner.
func (r *BreakableRef[T, PT]) SetStrong(owner PT) {
	if owner != nil {
		owner.Retain()
	}
	prev := r.strong
	r.strong = owner
	r.weak = weak.Pointer[T]{}
	if prev != nil {
		prev.Release()
	}
}

// SetWeak replaces the held relation with a non-owning reference to owner.
// It does not affect the owner's lifetime, except for releasing a previously
// held strong claim.
func (r *BreakableRef[T, PT]) SetWeak(owner PT) {
	prev := r.strong
	r.strong = nil
	if owner != nil {
		r.weak = weak.Make((*T)(owner))
	} else {
		r.weak = weak.Pointer[T]{}
	}
	if prev != nil {
		prev.Release()
	}
}

// BreakStrong converts a strong relation into a weak relation to the same
// owner and releases the ownership claim. It is a no-op when the relation is
// already weak or unset.
func (r *BreakableRef[T, PT]) BreakStrong() {
	owner := r.strong
	if owner == nil {
		return
	}
	r.weak = weak.Make((*T)(owner))
	r.strong = nil
	owner.Release()
}

// RestoreStrong converts a weak relation back into a strong one if the owner
// is still live. It reports whether the relation is strong afterwards.
func (r *BreakableRef[T, PT]) RestoreStrong() bool {
	if r.strong != nil {
		return true
	}
	p := r.weak.Value()
	if p == nil {
		return false
	}
	owner := PT(p)
	if !owner.Alive() {
		return false
	}
	owner.Retain()
	r.strong = owner
	r.weak = weak.Pointer[T]{}
	return true
}

// Get returns the owner regardless of the relation kind, or nil if unset or
// the weakly referenced owner has been collected.
func (r *BreakableRef[T, PT]) Get() PT {
	if r.strong != nil {
		return r.strong
	}
	if p := r.weak.Value(); p != nil {
		return PT(p)
	}
	return nil
}

// IsStrong reports whether the reference currently holds an ownership claim.
func (r *BreakableRef[T, PT]) IsStrong() bool {
	return r.strong != nil
}
