package rhi

import "slices"

// SpecializationArg is one positional type argument together with its
// interned id. Args are compared by ID only.
type SpecializationArg struct {
	Type TypeReflection
	ID   ComponentID
}

// SpecializationArgs is an ordered list of type arguments. Order is
// significant: positions correspond to the program's specialization
// parameters.
type SpecializationArgs []SpecializationArg

// IDs returns the argument ids, the pipeline cache key material.
func (a SpecializationArgs) IDs() []ComponentID {
	ids := make([]ComponentID, len(a))
	for i, arg := range a {
		ids[i] = arg.ID
	}
	return ids
}

// Names returns the full names of the argument types.
func (a SpecializationArgs) Names() []string {
	names := make([]string, len(a))
	for i, arg := range a {
		if arg.Type != nil {
			names[i] = arg.Type.FullName()
		}
	}
	return names
}

// Types returns the argument types.
func (a SpecializationArgs) Types() []TypeReflection {
	types := make([]TypeReflection, len(a))
	for i, arg := range a {
		types[i] = arg.Type
	}
	return types
}

// Clone returns a copy that shares no backing array with a.
func (a SpecializationArgs) Clone() SpecializationArgs {
	if a == nil {
		return nil
	}
	return slices.Clone(a)
}

// Equal reports whether both lists have the same ids in the same order.
func (a SpecializationArgs) Equal(b SpecializationArgs) bool {
	return slices.EqualFunc(a, b, func(x, y SpecializationArg) bool { return x.ID == y.ID })
}

// HasDynamic reports whether any position was widened to the dynamic marker.
func (a SpecializationArgs) HasDynamic() bool {
	return slices.ContainsFunc(a, func(arg SpecializationArg) bool { return IsDynamic(arg.Type) })
}

// argUnifier merges the argument lists of several elements that share one
// specialization position range. Positions whose ids disagree are widened to
// the dynamic marker; agreeing positions keep their concrete type.
type argUnifier struct {
	dynamic SpecializationArg
	args    SpecializationArgs
	seen    bool
	widened int
}

// add merges one element's list. Every element of a range must contribute
// the same number of positions.
func (u *argUnifier) add(elem SpecializationArgs) error {
	if !u.seen {
		u.args = elem.Clone()
		u.seen = true
		return nil
	}
	if len(elem) != len(u.args) {
		return invalidArgf("element contributes %d specialization arguments, previous elements %d",
			len(elem), len(u.args))
	}
	for i := range u.args {
		if u.args[i].ID != elem[i].ID && u.args[i].ID != u.dynamic.ID {
			u.args[i] = u.dynamic
			u.widened++
		}
	}
	return nil
}

func (o *ShaderObject) collectSpecializationArgs() (SpecializationArgs, error) {
	o.markInitialized()

	if o.layout.container != ContainerNone {
		return o.containerArgs.Clone(), nil
	}

	var out SpecializationArgs
	for _, sr := range o.layout.element.SubObjectRanges {
		br := o.layout.element.BindingRanges[sr.BindingRangeIndex]
		u := argUnifier{dynamic: o.layout.device.dynamic}
		for i := range br.Count {
			slot := br.SubObjectIndex + i
			child := o.objects[slot]
			if child == nil {
				continue
			}
			if override := o.overrides[slot]; override != nil {
				if err := u.add(override); err != nil {
					return nil, err
				}
				continue
			}

			var elem SpecializationArgs
			switch br.Type {
			case BindingTypeExistentialValue:
				arg, err := child.specializedArg()
				if err != nil {
					return nil, err
				}
				elem = append(elem, arg)
			case BindingTypeParameterBlock, BindingTypeConstantBuffer,
				BindingTypeRawBuffer, BindingTypeMutableRawBuffer:
				if br.Specializable {
					arg, err := child.specializedArg()
					if err != nil {
						return nil, err
					}
					elem = append(elem, arg)
				}
				nested, err := child.collectSpecializationArgs()
				if err != nil {
					return nil, err
				}
				elem = append(elem, nested...)
			}
			if err := u.add(elem); err != nil {
				return nil, err
			}
		}
		if u.widened > 0 {
			Logger().Warn("rhi: specialization widened to dynamic type",
				"type", o.layout.element.Type.FullName(),
				"range", br.Name,
				"positions", u.widened)
		}
		out = append(out, u.args...)
	}
	return out, nil
}

// CollectSpecializationArgs returns the ordered concrete type arguments
// needed to specialize a program for the current bindings. Sub-object ranges
// are visited in declaration order; elements of one range that disagree at
// a position widen that position to DynamicType.
//
// The result is deterministic for identical bindings. Calling it moves an
// Initial object to Initialized.
func (o *ShaderObject) CollectSpecializationArgs() (SpecializationArgs, error) {
	return o.collectSpecializationArgs()
}

// SpecializedType returns the type this object represents once its
// existential fields are filled in: the element type itself when there is
// nothing to specialize, otherwise a SpecializedType over the collected
// arguments. The result is cached once the object is finalized.
func (o *ShaderObject) SpecializedType() (TypeReflection, error) {
	arg, err := o.specializedArg()
	if err != nil {
		return nil, err
	}
	return arg.Type, nil
}

func (o *ShaderObject) specializedArg() (SpecializationArg, error) {
	if o.specialized != nil && o.state == StateFinalized {
		return *o.specialized, nil
	}
	base := o.layout.element.Type
	args, err := o.collectSpecializationArgs()
	if err != nil {
		return SpecializationArg{}, err
	}
	arg := SpecializationArg{Type: base, ID: o.layout.componentID}
	if len(args) > 0 {
		arg = SpecializationArg{
			Type: &SpecializedType{Base: base, Args: args.Types()},
			ID:   o.layout.device.interner.InternStructural(base.FullName(), args.IDs()),
		}
	}
	if o.state == StateFinalized {
		o.specialized = &arg
	}
	return arg, nil
}
