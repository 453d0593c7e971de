// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/rhi"
	"github.com/gogpu/wgpu/hal"
)

var (
	// ErrNilDevice is returned when New is called without a device or queue.
	ErrNilDevice = errors.New("wgpu: nil hal device or queue")

	// ErrNotHALProvider is returned when a device provider does not expose
	// hal types.
	ErrNotHALProvider = errors.New("wgpu: provider does not expose HAL device and queue")

	// ErrForeignHandle is returned when a native handle was not created by
	// this package.
	ErrForeignHandle = errors.New("wgpu: handle not created by this backend")
)

var _ rhi.Backend = (*Backend)(nil)

// Buffer is the native payload of buffers created by Backend.
type Buffer struct {
	buf  hal.Buffer
	size uint64
}

// HAL returns the underlying hal buffer.
func (b *Buffer) HAL() hal.Buffer { return b.buf }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Pipeline is the native payload of pipelines created by Backend.
type Pipeline struct {
	label    string
	spirv    []uint32
	module   hal.ShaderModule
	layout   hal.PipelineLayout
	pipeline hal.ComputePipeline
}

// HAL returns the underlying hal compute pipeline.
func (p *Pipeline) HAL() hal.ComputePipeline { return p.pipeline }

// Layout returns the pipeline layout.
func (p *Pipeline) Layout() hal.PipelineLayout { return p.layout }

// SPIRV returns the compiled module words.
func (p *Pipeline) SPIRV() []uint32 { return p.spirv }

// Backend is an rhi.Backend over a hal device and queue.
type Backend struct {
	mu     sync.Mutex
	device hal.Device
	queue  hal.Queue
	opts   options

	// Counters, guarded by mu.
	compiles  int
	cacheHits int
}

// New creates a backend over an open hal device and its queue. The caller
// keeps ownership of both.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Backend, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Backend{device: device, queue: queue, opts: o}, nil
}

// NewFromProvider creates a backend over the device shared by a host
// application. The provider must implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNotHALProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is %T", ErrNotHALProvider, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is %T", ErrNotHALProvider, hp.HalQueue())
	}
	return New(device, queue, opts...)
}

// SetLogger sets the logger for the backend package. rhi.SetLogger calls
// it for every backend handed to rhi.NewDevice.
func (b *Backend) SetLogger(l *slog.Logger) {
	setLogger(l)
}

// CreateBuffer creates a hal buffer and uploads data into it.
func (b *Backend) CreateBuffer(desc *rhi.BufferDesc, data []byte) (any, error) {
	size := align4(desc.Size)
	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	if len(data) > 0 {
		b.queue.WriteBuffer(buf, 0, pad4(data))
	}
	slogger().Debug("wgpu: buffer created", "label", desc.Label, "size", size)
	return &Buffer{buf: buf, size: size}, nil
}

// WriteBuffer uploads data at offset through the queue.
func (b *Backend) WriteBuffer(buffer any, offset uint64, data []byte) error {
	buf, ok := buffer.(*Buffer)
	if !ok {
		return fmt.Errorf("%w: %T", ErrForeignHandle, buffer)
	}
	data = pad4(data)
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("wgpu: write of %d bytes at %d exceeds %d byte buffer", len(data), offset, buf.size)
	}
	b.queue.WriteBuffer(buf.buf, offset, data)
	return nil
}

// DestroyBuffer releases a buffer created by CreateBuffer.
func (b *Backend) DestroyBuffer(buffer any) error {
	buf, ok := buffer.(*Buffer)
	if !ok {
		return fmt.Errorf("%w: %T", ErrForeignHandle, buffer)
	}
	if buf.buf != nil {
		b.device.DestroyBuffer(buf.buf)
		buf.buf = nil
	}
	return nil
}

// CreatePipeline compiles req into a hal compute pipeline.
func (b *Backend) CreatePipeline(req *rhi.PipelineRequest) (any, error) {
	if req.Kind != rhi.PipelineKindCompute {
		return nil, fmt.Errorf("%w: %s pipelines", rhi.ErrUnsupported, req.Kind)
	}
	entry := b.opts.entryPoint
	if len(req.Program.EntryPoints) > 0 {
		entry = req.Program.EntryPoints[0]
	}

	spirv, err := b.spirv(req)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{label: req.Label, spirv: spirv}
	if err := b.link(p, entry); err != nil {
		b.destroy(p)
		return nil, &rhi.CompileError{
			Pipeline: req.Label,
			Args:     req.Args.Names(),
			Err:      err,
		}
	}
	slogger().Debug("wgpu: compute pipeline created",
		"label", req.Label,
		"args", req.Args.Names(),
		"words", len(spirv))
	return p, nil
}

// spirv returns the compiled module for req, from the persistent cache when
// possible.
func (b *Backend) spirv(req *rhi.PipelineRequest) ([]uint32, error) {
	cache := b.opts.shaderCache
	if cache == nil {
		cache = req.ShaderCache
	}
	var key string
	if cache != nil {
		key = rhi.ShaderCacheKey(req.Program, req.Args, spirvTarget)
		if blob, ok := cache.Get(key); ok {
			if words, ok := spirvWords(blob); ok {
				b.mu.Lock()
				b.cacheHits++
				b.mu.Unlock()
				slogger().Debug("wgpu: shader cache hit", "label", req.Label, "key", key)
				return words, nil
			}
			slogger().Warn("wgpu: ignoring malformed shader cache entry", "key", key, "bytes", len(blob))
		}
	}

	b.mu.Lock()
	b.compiles++
	b.mu.Unlock()

	blob, err := compileSPIRV(specializedSource(req.Program, req.Args))
	if err != nil {
		return nil, &rhi.CompileError{
			Pipeline:    req.Label,
			Args:        req.Args.Names(),
			Diagnostics: []byte(err.Error()),
			Err:         err,
		}
	}
	words, ok := spirvWords(blob)
	if !ok {
		return nil, &rhi.CompileError{
			Pipeline: req.Label,
			Args:     req.Args.Names(),
			Err:      errors.New("naga output lacks the SPIR-V magic number"),
		}
	}
	if cache != nil {
		cache.Put(key, blob)
	}
	return words, nil
}

// link creates the shader module, layout and compute pipeline of p.
func (b *Backend) link(p *Pipeline, entry string) error {
	module, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  p.label,
		Source: hal.ShaderSource{SPIRV: p.spirv},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	p.module = module

	layout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: p.label + "_layout",
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	p.layout = layout

	pipeline, err := b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   p.label,
		Layout:  p.layout,
		Compute: hal.ComputeState{Module: p.module, EntryPoint: entry},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	p.pipeline = pipeline
	return nil
}

// destroy releases whatever parts of p were created, in reverse order.
func (b *Backend) destroy(p *Pipeline) {
	if p.pipeline != nil {
		b.device.DestroyComputePipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.layout != nil {
		b.device.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	if p.module != nil {
		b.device.DestroyShaderModule(p.module)
		p.module = nil
	}
}

// DestroyPipeline releases a pipeline created by CreatePipeline.
func (b *Backend) DestroyPipeline(pipeline any) error {
	p, ok := pipeline.(*Pipeline)
	if !ok {
		return fmt.Errorf("%w: %T", ErrForeignHandle, pipeline)
	}
	b.destroy(p)
	return nil
}

// Stats reports how many programs were compiled with naga and how many were
// served from the persistent cache.
func (b *Backend) Stats() (compiles, cacheHits int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.compiles, b.cacheHits
}

func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}

// pad4 extends data with zeros to a multiple of 4 bytes, the queue write
// granularity.
func pad4(data []byte) []byte {
	if len(data)%4 == 0 {
		return data
	}
	padded := make([]byte, align4(uint64(len(data))))
	copy(padded, data)
	return padded
}
