package rhi

import "strings"

// TypeKind classifies a reflected shader type.
type TypeKind uint8

const (
	// TypeKindStruct is a plain struct or scalar/vector type.
	TypeKindStruct TypeKind = iota
	// TypeKindInterface is an existential (interface) type.
	TypeKindInterface
	// TypeKindArray is a fixed or unsized array.
	TypeKindArray
	// TypeKindStructuredBuffer is a structured buffer resource.
	TypeKindStructuredBuffer
	// TypeKindConstantBuffer wraps its element in a constant buffer.
	TypeKindConstantBuffer
	// TypeKindParameterBlock wraps its element in a parameter block.
	TypeKindParameterBlock
	// TypeKindResource is any other resource (texture, sampler, raw buffer).
	TypeKindResource
)

// String returns the kind name.
func (k TypeKind) String() string {
	switch k {
	case TypeKindStruct:
		return "Struct"
	case TypeKindInterface:
		return "Interface"
	case TypeKindArray:
		return "Array"
	case TypeKindStructuredBuffer:
		return "StructuredBuffer"
	case TypeKindConstantBuffer:
		return "ConstantBuffer"
	case TypeKindParameterBlock:
		return "ParameterBlock"
	case TypeKindResource:
		return "Resource"
	default:
		return "Unknown"
	}
}

// TypeReflection is the reflection service's view of a shader type.
// FullName must be identical for type-equal inputs; it is the interning key.
type TypeReflection interface {
	FullName() string
	Kind() TypeKind
}

// BasicType is a minimal TypeReflection for reflection services that only
// expose names, and for tests.
type BasicType struct {
	Name     string
	TypeKind TypeKind
}

// NewType returns a BasicType.
func NewType(name string, kind TypeKind) *BasicType {
	return &BasicType{Name: name, TypeKind: kind}
}

func (t *BasicType) FullName() string { return t.Name }
func (t *BasicType) Kind() TypeKind   { return t.TypeKind }

// DynamicTypeName names the marker type used when a specialization position
// cannot be resolved to one concrete type.
const DynamicTypeName = "__Dynamic"

// DynamicType is the dynamic/unspecializable marker.
var DynamicType TypeReflection = &BasicType{Name: DynamicTypeName, TypeKind: TypeKindInterface}

// IsDynamic reports whether t is the dynamic marker type.
func IsDynamic(t TypeReflection) bool {
	return t != nil && t.FullName() == DynamicTypeName
}

// SpecializedType is a generic type applied to concrete type arguments.
type SpecializedType struct {
	Base TypeReflection
	Args []TypeReflection
}

// FullName returns Base<Arg0,Arg1,...>.
func (t *SpecializedType) FullName() string {
	var b strings.Builder
	b.WriteString(t.Base.FullName())
	b.WriteByte('<')
	for i, a := range t.Args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.FullName())
	}
	b.WriteByte('>')
	return b.String()
}

func (t *SpecializedType) Kind() TypeKind { return t.Base.Kind() }

// BindingType is the declared kind of a binding range.
type BindingType uint8

const (
	BindingTypeUnknown BindingType = iota
	BindingTypeOrdinaryData
	BindingTypeExistentialValue
	BindingTypeConstantBuffer
	BindingTypeParameterBlock
	BindingTypeRawBuffer
	BindingTypeMutableRawBuffer
	BindingTypeTexture
	BindingTypeSampler
)

// String returns the binding type name.
func (b BindingType) String() string {
	switch b {
	case BindingTypeOrdinaryData:
		return "OrdinaryData"
	case BindingTypeExistentialValue:
		return "ExistentialValue"
	case BindingTypeConstantBuffer:
		return "ConstantBuffer"
	case BindingTypeParameterBlock:
		return "ParameterBlock"
	case BindingTypeRawBuffer:
		return "RawBuffer"
	case BindingTypeMutableRawBuffer:
		return "MutableRawBuffer"
	case BindingTypeTexture:
		return "Texture"
	case BindingTypeSampler:
		return "Sampler"
	default:
		return "Unknown"
	}
}

// holdsSubObject reports whether ranges of this type bind child shader objects.
func (b BindingType) holdsSubObject() bool {
	switch b {
	case BindingTypeExistentialValue, BindingTypeConstantBuffer, BindingTypeParameterBlock,
		BindingTypeRawBuffer, BindingTypeMutableRawBuffer:
		return true
	default:
		return false
	}
}

// BindingRange is one row of a type layout's binding-range table.
type BindingRange struct {
	// Name is the field name, used by ShaderObjectLayout.OffsetOf.
	Name string

	// Type is the declared binding kind.
	Type BindingType

	// Count is the number of array elements in the range (1 for scalars).
	Count int

	// SubObjectIndex is the first sub-object slot used by the range,
	// or -1 if the range does not hold sub-objects.
	SubObjectIndex int

	// Specializable is set when the range itself is a specialization
	// parameter, e.g. ParameterBlock<IFoo>.
	Specializable bool

	// UniformOffset is the byte offset of the range's ordinary data.
	UniformOffset int

	// UniformStride is the byte distance between array elements.
	UniformStride int

	// LeafTypeLayout is the layout of the field itself; for existential
	// ranges it carries the inline payload capacity.
	LeafTypeLayout *TypeLayout
}

// SubObjectRange marks a binding range that may require specialization.
type SubObjectRange struct {
	BindingRangeIndex int
}

// TypeLayout is the reflection service's layout of a type. It is treated as
// immutable once handed to a Device.
type TypeLayout struct {
	// Type is the reflected type; nil for wrapper layouts that only carry
	// an element.
	Type TypeReflection

	// Size is the size of the type's ordinary data in bytes.
	Size int

	// Stride is the array stride of the type (Size rounded up to alignment).
	Stride int

	// Element is the element layout of arrays, structured buffers, constant
	// buffers and parameter blocks.
	Element *TypeLayout

	// BindingRanges is the binding-range table.
	BindingRanges []BindingRange

	// SubObjectRanges lists ranges, in declaration order, that may need
	// specialization arguments.
	SubObjectRanges []SubObjectRange

	// ExistentialPayloadSize is the inline payload capacity of an
	// existential field, excluding the header.
	ExistentialPayloadSize int
}

// Kind returns the kind of the layout's type, or TypeKindStruct for untyped
// layouts.
func (l *TypeLayout) Kind() TypeKind {
	if l == nil || l.Type == nil {
		return TypeKindStruct
	}
	return l.Type.Kind()
}

// ElementStride returns the stride of one element, falling back to Size.
func (l *TypeLayout) ElementStride() int {
	if l.Stride > 0 {
		return l.Stride
	}
	return l.Size
}

// Reflector provides the reflection facts the core needs beyond layouts.
type Reflector interface {
	// WitnessID returns the witness-table id for concrete conforming to iface.
	WitnessID(concrete, iface TypeReflection) (uint64, error)
}

// PayloadFitter decides whether a value of the concrete layout fits inline in
// an existential field.
type PayloadFitter func(concrete, field *TypeLayout) bool

// DefaultPayloadFitter compares the concrete size against the field's payload
// capacity.
func DefaultPayloadFitter(concrete, field *TypeLayout) bool {
	if concrete == nil || field == nil {
		return false
	}
	return concrete.Size <= field.ExistentialPayloadSize
}
