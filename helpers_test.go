package rhi

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeBuffer is the native payload of fakeBackend buffers.
type fakeBuffer struct {
	label string
	data  []byte
}

// fakePipeline is the native payload of fakeBackend pipelines.
type fakePipeline struct {
	label string
	args  []string
}

// fakeBackend records calls and can be told to reject compiles.
type fakeBackend struct {
	mu sync.Mutex

	compiles int
	fail     error
	requests []PipelineRequest

	buffers            []*fakeBuffer
	writes             int
	destroyedBuffers   int
	destroyedPipelines int
	destroyErr         error

	logger *slog.Logger
}

func (b *fakeBackend) CreateBuffer(desc *BufferDesc, data []byte) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := &fakeBuffer{label: desc.Label, data: make([]byte, desc.Size)}
	copy(buf.data, data)
	b.buffers = append(b.buffers, buf)
	return buf, nil
}

func (b *fakeBackend) WriteBuffer(buffer any, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes++
	copy(buffer.(*fakeBuffer).data[offset:], data)
	return nil
}

func (b *fakeBackend) DestroyBuffer(any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyedBuffers++
	return b.destroyErr
}

func (b *fakeBackend) CreatePipeline(req *PipelineRequest) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compiles++
	b.requests = append(b.requests, *req)
	if b.fail != nil {
		return nil, b.fail
	}
	return &fakePipeline{label: req.Label, args: req.Args.Names()}, nil
}

func (b *fakeBackend) DestroyPipeline(any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyedPipelines++
	return b.destroyErr
}

func (b *fakeBackend) SetLogger(l *slog.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = l
}

func (b *fakeBackend) compileCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.compiles
}

func (b *fakeBackend) setFail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

func newTestDevice(t *testing.T, opts ...DeviceOption) (*Device, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{}
	dev, err := NewDevice(backend, opts...)
	require.NoError(t, err)
	return dev, backend
}

// fixtures is a small material system:
//
//	interface IMaterial              64 bytes: 16 header + 48 payload
//	struct Lambert, Phong            12 bytes
//	struct Big                       64 bytes, never fits inline
//	struct Scene   { IMaterial material; }
//	struct Pair    { IMaterial materials[2]; }
//	struct Globals { IMaterial material; StructuredBuffer<IMaterial> lights; Texture2D albedo; }
type fixtures struct {
	iface   *TypeLayout
	lambert *TypeLayout
	phong   *TypeLayout
	big     *TypeLayout
	scene   *TypeLayout
	pair    *TypeLayout
	globals *TypeLayout
	program *ShaderProgram
}

func newFixtures() *fixtures {
	f := &fixtures{}
	f.iface = &TypeLayout{
		Type:                   NewType("IMaterial", TypeKindInterface),
		Size:                   64,
		Stride:                 64,
		ExistentialPayloadSize: 48,
	}
	f.lambert = &TypeLayout{Type: NewType("Lambert", TypeKindStruct), Size: 12, Stride: 12}
	f.phong = &TypeLayout{Type: NewType("Phong", TypeKindStruct), Size: 12, Stride: 12}
	f.big = &TypeLayout{Type: NewType("Big", TypeKindStruct), Size: 64, Stride: 64}
	f.scene = &TypeLayout{
		Type:   NewType("Scene", TypeKindStruct),
		Size:   64,
		Stride: 64,
		BindingRanges: []BindingRange{
			{Name: "material", Type: BindingTypeExistentialValue, Count: 1, LeafTypeLayout: f.iface},
		},
		SubObjectRanges: []SubObjectRange{{BindingRangeIndex: 0}},
	}
	f.pair = &TypeLayout{
		Type:   NewType("Pair", TypeKindStruct),
		Size:   128,
		Stride: 128,
		BindingRanges: []BindingRange{
			{Name: "materials", Type: BindingTypeExistentialValue, Count: 2, UniformStride: 64, LeafTypeLayout: f.iface},
		},
		SubObjectRanges: []SubObjectRange{{BindingRangeIndex: 0}},
	}
	f.globals = &TypeLayout{
		Type:   NewType("Globals", TypeKindStruct),
		Size:   64,
		Stride: 64,
		BindingRanges: []BindingRange{
			{Name: "material", Type: BindingTypeExistentialValue, Count: 1, SubObjectIndex: 0, LeafTypeLayout: f.iface},
			{Name: "lights", Type: BindingTypeRawBuffer, Count: 1, SubObjectIndex: 1},
			{Name: "albedo", Type: BindingTypeTexture, Count: 1, SubObjectIndex: -1},
		},
		SubObjectRanges: []SubObjectRange{{BindingRangeIndex: 0}, {BindingRangeIndex: 1}},
	}
	f.program = &ShaderProgram{
		Label:                "shade",
		Source:               "@compute @workgroup_size(1) fn main() {}",
		EntryPoints:          []string{"main"},
		GlobalLayout:         f.globals,
		SpecializationParams: 2,
	}
	return f
}

// newValue creates an object of a concrete layout filled with fill.
func newValue(t *testing.T, dev *Device, tl *TypeLayout, fill byte) *ShaderObject {
	t.Helper()
	o, err := dev.CreateShaderObject(tl)
	require.NoError(t, err)
	data := make([]byte, tl.Size)
	for i := range data {
		data[i] = fill
	}
	require.NoError(t, o.SetData(ShaderOffset{}, data))
	return o
}

func offsetOf(t *testing.T, o *ShaderObject, name string, index int) ShaderOffset {
	t.Helper()
	off, err := o.Layout().OffsetOf(name, index)
	require.NoError(t, err)
	return off
}
