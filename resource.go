package rhi

import "github.com/gogpu/gputypes"

// ResourceKind is the logical kind of a resource.
type ResourceKind uint8

const (
	ResourceKindBuffer ResourceKind = iota
	ResourceKindTexture
	ResourceKindSampler
)

// String returns the kind name.
func (k ResourceKind) String() string {
	switch k {
	case ResourceKindBuffer:
		return "Buffer"
	case ResourceKindTexture:
		return "Texture"
	case ResourceKindSampler:
		return "Sampler"
	default:
		return "Unknown"
	}
}

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage

	// ElementStride is the element size of a structured buffer, 0 otherwise.
	ElementStride int
}

// Resource is a native resource of one logical kind. The backend payload is
// opaque to the core.
type Resource struct {
	kind   ResourceKind
	label  string
	size   uint64
	usage  gputypes.BufferUsage
	native any
}

// WrapResource wraps a resource created outside the device, e.g. a texture
// owned by the host application, so it can be bound with SetBinding.
func WrapResource(kind ResourceKind, label string, native any) *Resource {
	return &Resource{kind: kind, label: label, native: native}
}

func (r *Resource) Kind() ResourceKind          { return r.kind }
func (r *Resource) Label() string               { return r.label }
func (r *Resource) Size() uint64                { return r.size }
func (r *Resource) Usage() gputypes.BufferUsage { return r.usage }

// Native returns the backend payload.
func (r *Resource) Native() any { return r.native }

// structuredBufferUsage is the usage of buffers backing structured-buffer
// shader objects.
var structuredBufferUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
