package rhi

import "fmt"

// ContainerType classifies a shader object as a single value or a collection.
type ContainerType uint8

const (
	ContainerNone ContainerType = iota
	ContainerArray
	ContainerStructuredBuffer
)

// String returns the container name.
func (c ContainerType) String() string {
	switch c {
	case ContainerNone:
		return "None"
	case ContainerArray:
		return "Array"
	case ContainerStructuredBuffer:
		return "StructuredBuffer"
	default:
		return "Unknown"
	}
}

// ShaderOffset addresses a location inside a shader object.
type ShaderOffset struct {
	UniformOffset     int
	BindingRangeIndex int
	BindingArrayIndex int
}

// ShaderObjectLayout is the device's view of a type layout: the unwrapped
// element layout, its container kind, interned type id and sub-object slot
// count. Layouts are shared by every object of the same type.
type ShaderObjectLayout struct {
	// device is a plain pointer; shader objects hold the strong reference
	// that keeps it valid while the layout is in use.
	device *Device

	typeLayout     *TypeLayout
	element        *TypeLayout
	container      ContainerType
	componentID    ComponentID
	subObjectCount int
}

// unwrapParameterGroups strips constant-buffer and parameter-block wrappers
// and classifies array and structured-buffer containers.
func unwrapParameterGroups(tl *TypeLayout) (*TypeLayout, ContainerType) {
	for tl != nil {
		if tl.Type == nil && tl.Element != nil {
			tl = tl.Element
		}
		switch tl.Kind() {
		case TypeKindArray:
			return tl.Element, ContainerArray
		case TypeKindStructuredBuffer:
			return tl.Element, ContainerStructuredBuffer
		case TypeKindConstantBuffer, TypeKindParameterBlock:
			tl = tl.Element
		default:
			return tl, ContainerNone
		}
	}
	return nil, ContainerNone
}

func newShaderObjectLayout(d *Device, tl *TypeLayout, container ContainerType) (*ShaderObjectLayout, error) {
	if tl == nil {
		return nil, invalidArgf("nil type layout")
	}
	element := tl
	if container == ContainerNone {
		element, container = unwrapParameterGroups(tl)
	}
	if element == nil || element.Type == nil {
		return nil, invalidArgf("type layout has no element type")
	}
	if container != ContainerNone && element.ElementStride() <= 0 {
		return nil, invalidArgf("container element %q has no stride", element.Type.FullName())
	}

	count := 0
	for i, br := range element.BindingRanges {
		if br.Count <= 0 {
			return nil, invalidArgf("binding range %d of %q has count %d", i, element.Type.FullName(), br.Count)
		}
		if !br.Type.holdsSubObject() {
			continue
		}
		if br.SubObjectIndex < 0 {
			return nil, invalidArgf("binding range %d (%s) of %q has no sub-object index",
				i, br.Type, element.Type.FullName())
		}
		if br.Type == BindingTypeExistentialValue && (br.LeafTypeLayout == nil || br.LeafTypeLayout.Type == nil) {
			return nil, invalidArgf("existential binding range %d of %q has no leaf layout", i, element.Type.FullName())
		}
		count = max(count, br.SubObjectIndex+br.Count)
	}
	for _, sr := range element.SubObjectRanges {
		if sr.BindingRangeIndex < 0 || sr.BindingRangeIndex >= len(element.BindingRanges) {
			return nil, invalidArgf("sub-object range references binding range %d of %q",
				sr.BindingRangeIndex, element.Type.FullName())
		}
	}

	return &ShaderObjectLayout{
		device:         d,
		typeLayout:     tl,
		element:        element,
		container:      container,
		componentID:    d.interner.InternType(element.Type),
		subObjectCount: count,
	}, nil
}

// Device returns the device that created the layout.
func (l *ShaderObjectLayout) Device() *Device { return l.device }

// TypeLayout returns the layout the object layout was created from.
func (l *ShaderObjectLayout) TypeLayout() *TypeLayout { return l.typeLayout }

// ElementTypeLayout returns the unwrapped element layout.
func (l *ShaderObjectLayout) ElementTypeLayout() *TypeLayout { return l.element }

// Type returns the element type.
func (l *ShaderObjectLayout) Type() TypeReflection { return l.element.Type }

// ContainerType returns the container kind.
func (l *ShaderObjectLayout) ContainerType() ContainerType { return l.container }

// ComponentID returns the interned id of the element type.
func (l *ShaderObjectLayout) ComponentID() ComponentID { return l.componentID }

// SubObjectCount returns the number of sub-object slots of a non-container
// object.
func (l *ShaderObjectLayout) SubObjectCount() int { return l.subObjectCount }

// BindingRangeCount returns the number of binding ranges.
func (l *ShaderObjectLayout) BindingRangeCount() int { return len(l.element.BindingRanges) }

// BindingRange returns binding range i.
func (l *ShaderObjectLayout) BindingRange(i int) BindingRange { return l.element.BindingRanges[i] }

// SubObjectRanges returns the ranges that may require specialization, in
// declaration order.
func (l *ShaderObjectLayout) SubObjectRanges() []SubObjectRange { return l.element.SubObjectRanges }

// bindingRange validates offset against the binding-range table.
func (l *ShaderObjectLayout) bindingRange(offset ShaderOffset) (BindingRange, error) {
	if offset.BindingRangeIndex < 0 || offset.BindingRangeIndex >= len(l.element.BindingRanges) {
		return BindingRange{}, invalidArgf("binding range %d out of range [0,%d)",
			offset.BindingRangeIndex, len(l.element.BindingRanges))
	}
	br := l.element.BindingRanges[offset.BindingRangeIndex]
	if offset.BindingArrayIndex < 0 || offset.BindingArrayIndex >= br.Count {
		return BindingRange{}, invalidArgf("array index %d out of range [0,%d) in binding range %d",
			offset.BindingArrayIndex, br.Count, offset.BindingRangeIndex)
	}
	return br, nil
}

// subObjectSlot returns the flattened sub-object index of offset.
func (l *ShaderObjectLayout) subObjectSlot(offset ShaderOffset) (int, BindingRange, error) {
	br, err := l.bindingRange(offset)
	if err != nil {
		return 0, br, err
	}
	if !br.Type.holdsSubObject() {
		return 0, br, invalidArgf("binding range %d (%s) does not hold sub-objects",
			offset.BindingRangeIndex, br.Type)
	}
	return br.SubObjectIndex + offset.BindingArrayIndex, br, nil
}

// Offset returns the offset of element arrayIndex of binding range rangeIndex.
func (l *ShaderObjectLayout) Offset(rangeIndex, arrayIndex int) (ShaderOffset, error) {
	offset := ShaderOffset{BindingRangeIndex: rangeIndex, BindingArrayIndex: arrayIndex}
	br, err := l.bindingRange(offset)
	if err != nil {
		return ShaderOffset{}, err
	}
	offset.UniformOffset = br.UniformOffset + arrayIndex*br.UniformStride
	return offset, nil
}

// OffsetOf returns the offset of element arrayIndex of the binding range
// named name.
func (l *ShaderObjectLayout) OffsetOf(name string, arrayIndex int) (ShaderOffset, error) {
	for i, br := range l.element.BindingRanges {
		if br.Name == name {
			return l.Offset(i, arrayIndex)
		}
	}
	return ShaderOffset{}, fmt.Errorf("%w: no binding range named %q in %q",
		ErrInvalidArgument, name, l.element.Type.FullName())
}

// ElementOffset returns the offset of element index of a container object.
func (l *ShaderObjectLayout) ElementOffset(index int) ShaderOffset {
	return ShaderOffset{
		UniformOffset:     index * l.element.ElementStride(),
		BindingArrayIndex: index,
	}
}
