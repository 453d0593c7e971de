package rhi

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
)

// layoutKey identifies a cached ShaderObjectLayout.
type layoutKey struct {
	layout    *TypeLayout
	container ContainerType
}

// Device owns the type interner, the pipeline cache, the shader object
// layout cache and every pipeline and buffer it creates. Its lifetime is
// governed by an explicit ownership count: NewDevice returns it with one
// claim held by the caller, and each live shader object holds another. When
// the last claim is released the device destroys what it owns and frees the
// cache and interner as a unit.
type Device struct {
	label   string
	backend Backend
	opts    deviceOptions

	refs  atomic.Int32
	alive atomic.Bool

	interner  *TypeInterner
	cache     *PipelineCache
	reflector Reflector
	fitter    PayloadFitter
	dynamic   SpecializationArg
	serial    atomic.Uint64

	mu        sync.Mutex
	layouts   map[layoutKey]*ShaderObjectLayout
	pipelines []*Pipeline
	resources []*Resource
	queue     *CommandQueue
	err       error
}

// NewDevice creates a device over backend.
func NewDevice(backend Backend, opts ...DeviceOption) (*Device, error) {
	if backend == nil {
		return nil, invalidArgf("nil backend")
	}
	o := defaultDeviceOptions()
	for _, opt := range opts {
		opt(&o)
	}

	d := &Device{
		label:    o.label,
		backend:  backend,
		opts:     o,
		interner: newTypeInterner(o.concurrent),
		cache:    newPipelineCache(o.concurrent),
		fitter:   o.fitter,
		layouts:  make(map[layoutKey]*ShaderObjectLayout),
	}
	d.refs.Store(1)
	d.alive.Store(true)
	d.reflector = o.reflector
	if d.reflector == nil {
		d.reflector = internReflector{interner: d.interner}
	}
	d.dynamic = SpecializationArg{Type: DynamicType, ID: d.interner.InternType(DynamicType)}
	d.queue = newCommandQueue(d)

	propagateLogger(backend)
	Logger().Info("rhi: device created", "label", d.label, "concurrent", o.concurrent)
	return d, nil
}

// Label returns the device label.
func (d *Device) Label() string { return d.label }

// Backend returns the backend the device was created over.
func (d *Device) Backend() Backend { return d.backend }

// Interner returns the device's type interner.
func (d *Device) Interner() *TypeInterner { return d.interner }

// PipelineCache returns the device's specialized pipeline cache.
func (d *Device) PipelineCache() *PipelineCache { return d.cache }

// PersistentShaderCache returns the configured persistent cache, or nil.
func (d *Device) PersistentShaderCache() PersistentShaderCache { return d.opts.shaderCache }

// DynamicArg returns the dynamic marker argument with its interned id.
func (d *Device) DynamicArg() SpecializationArg { return d.dynamic }

// Retain adds an ownership claim.
func (d *Device) Retain() {
	d.refs.Add(1)
}

// Release drops an ownership claim and tears the device down when it was the
// last one.
func (d *Device) Release() {
	if d.refs.Add(-1) == 0 {
		d.teardown()
	}
}

// Alive reports whether the device has not been torn down.
func (d *Device) Alive() bool {
	return d.alive.Load()
}

// Err returns the combined errors of teardown, or nil.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *Device) teardown() {
	d.alive.Store(false)

	err := d.cache.Free(func(p *Pipeline) error {
		return d.backend.DestroyPipeline(p.native)
	})

	d.mu.Lock()
	for _, p := range d.pipelines {
		if p.native != nil {
			err = multierr.Append(err, d.backend.DestroyPipeline(p.native))
		}
	}
	for _, res := range d.resources {
		err = multierr.Append(err, d.backend.DestroyBuffer(res.native))
	}
	d.pipelines = nil
	d.resources = nil
	d.layouts = nil
	d.queue = nil
	d.err = err
	d.mu.Unlock()

	d.interner.Free()
	forgetLogger(d.backend)

	if err != nil {
		Logger().Warn("rhi: device teardown", "label", d.label, "err", err)
		return
	}
	Logger().Info("rhi: device released", "label", d.label)
}

func (d *Device) checkAlive() error {
	if !d.alive.Load() {
		return ErrDeviceReleased
	}
	return nil
}

// ShaderObjectLayout returns the shared layout for tl, creating it on first
// use. Constant-buffer and parameter-block wrappers are unwrapped; array and
// structured-buffer layouts become container layouts.
func (d *Device) ShaderObjectLayout(tl *TypeLayout) (*ShaderObjectLayout, error) {
	return d.shaderObjectLayout(tl, ContainerNone)
}

func (d *Device) shaderObjectLayout(tl *TypeLayout, container ContainerType) (*ShaderObjectLayout, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	key := layoutKey{layout: tl, container: container}
	if l, ok := d.layouts[key]; ok {
		return l, nil
	}
	l, err := newShaderObjectLayout(d, tl, container)
	if err != nil {
		return nil, err
	}
	d.layouts[key] = l
	Logger().Debug("rhi: shader object layout created",
		"type", l.element.Type.FullName(),
		"container", l.container,
		"id", l.componentID)
	return l, nil
}

// CreateShaderObject creates an ordinary shader object for tl.
func (d *Device) CreateShaderObject(tl *TypeLayout) (*ShaderObject, error) {
	l, err := d.ShaderObjectLayout(tl)
	if err != nil {
		return nil, err
	}
	return newShaderObject(d, l, RoleOrdinary), nil
}

// CreateContainerShaderObject creates an array or structured-buffer shader
// object whose elements have layout element.
func (d *Device) CreateContainerShaderObject(element *TypeLayout, container ContainerType) (*ShaderObject, error) {
	if container != ContainerArray && container != ContainerStructuredBuffer {
		return nil, invalidArgf("container type %s", container)
	}
	l, err := d.shaderObjectLayout(element, container)
	if err != nil {
		return nil, err
	}
	return newShaderObject(d, l, RoleOrdinary), nil
}

// CreateRootShaderObject creates the root object over program's global
// parameters.
func (d *Device) CreateRootShaderObject(program *ShaderProgram) (*ShaderObject, error) {
	if program == nil || program.GlobalLayout == nil {
		return nil, invalidArgf("program without global layout")
	}
	l, err := d.ShaderObjectLayout(program.GlobalLayout)
	if err != nil {
		return nil, err
	}
	o := newShaderObject(d, l, RoleRoot)
	o.program = program
	return o, nil
}

// CreatePipeline creates a pipeline for desc. If the program has
// specialization parameters the pipeline is virtual and compiled per
// binding by ConcretePipeline; otherwise it is compiled immediately.
func (d *Device) CreatePipeline(desc *PipelineDesc) (*Pipeline, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	if desc == nil || desc.Program == nil {
		return nil, invalidArgf("pipeline without program")
	}
	label := desc.Label
	if label == "" {
		label = desc.Program.Label
	}
	p := &Pipeline{
		kind:    desc.Kind,
		label:   label,
		program: desc.Program,
		virtual: desc.Program.Specializable(),
		serial:  d.serial.Add(1),
	}
	if !p.virtual {
		native, err := d.backend.CreatePipeline(&PipelineRequest{
			Kind:        p.kind,
			Label:       label,
			Program:     p.program,
			ShaderCache: d.opts.shaderCache,
		})
		if err != nil {
			return nil, compileError(label, nil, err)
		}
		p.native = native
	}

	d.mu.Lock()
	d.pipelines = append(d.pipelines, p)
	d.mu.Unlock()

	Logger().Debug("rhi: pipeline created", "label", label, "kind", p.kind, "virtual", p.virtual)
	return p, nil
}

// ConcretePipeline resolves p for the bindings of root. A non-virtual
// pipeline is returned unchanged. A virtual one is specialized with the
// arguments collected from root and served from the pipeline cache; the
// backend compiles each distinct argument list once.
func (d *Device) ConcretePipeline(p *Pipeline, root *ShaderObject) (*Pipeline, error) {
	if p == nil {
		return nil, invalidArgf("nil pipeline")
	}
	if !p.virtual {
		return p, nil
	}
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	if root == nil {
		return nil, invalidArgf("virtual pipeline %q needs a root object", p.label)
	}
	args, err := root.CollectSpecializationArgs()
	if err != nil {
		return nil, fmt.Errorf("rhi: collect specialization args for %q: %w", p.label, err)
	}
	if want := p.program.SpecializationParams; len(args) != want {
		return nil, invalidArgf("program %q takes %d specialization arguments, bindings supply %d",
			p.label, want, len(args))
	}
	return d.cache.GetOrSpecialize(p, args, d.compileSpecialized)
}

func (d *Device) compileSpecialized(base *Pipeline, args SpecializationArgs) (*Pipeline, error) {
	native, err := d.backend.CreatePipeline(&PipelineRequest{
		Kind:        base.kind,
		Label:       base.label,
		Program:     base.program,
		Args:        args,
		ShaderCache: d.opts.shaderCache,
	})
	if err != nil {
		return nil, compileError(base.label, args, err)
	}
	return &Pipeline{
		kind:    base.kind,
		label:   base.label,
		program: base.program,
		serial:  d.serial.Add(1),
		base:    base,
		args:    args.Clone(),
		native:  native,
	}, nil
}

// compileError reports a backend rejection as a *CompileError.
func compileError(label string, args SpecializationArgs, err error) error {
	var ce *CompileError
	if errors.As(err, &ce) {
		return err
	}
	return &CompileError{Pipeline: label, Args: args.Names(), Err: err}
}

// specializationArgs interns explicit type arguments. No types yields nil.
func (d *Device) specializationArgs(types []TypeReflection) (SpecializationArgs, error) {
	if len(types) == 0 {
		return nil, nil
	}
	args := make(SpecializationArgs, len(types))
	for i, t := range types {
		if t == nil {
			return nil, invalidArgf("nil specialization argument %d", i)
		}
		id := d.interner.InternType(t)
		if id == InvalidComponentID {
			return nil, ErrDeviceReleased
		}
		args[i] = SpecializationArg{Type: t, ID: id}
	}
	return args, nil
}

// CreateBuffer creates a device-owned buffer initialized with data. The
// buffer lives until DestroyResource or device teardown.
func (d *Device) CreateBuffer(desc *BufferDesc, data []byte) (*Resource, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	if desc == nil || desc.Size == 0 {
		return nil, invalidArgf("buffer without size")
	}
	if uint64(len(data)) > desc.Size {
		return nil, invalidArgf("%d bytes of initial data exceed buffer size %d", len(data), desc.Size)
	}
	native, err := d.backend.CreateBuffer(desc, data)
	if err != nil {
		return nil, fmt.Errorf("rhi: create buffer %q: %w", desc.Label, err)
	}
	res := &Resource{
		kind:   ResourceKindBuffer,
		label:  desc.Label,
		size:   desc.Size,
		usage:  desc.Usage,
		native: native,
	}

	d.mu.Lock()
	d.resources = append(d.resources, res)
	d.mu.Unlock()
	return res, nil
}

func (d *Device) writeBuffer(res *Resource, offset uint64, data []byte) error {
	if err := d.checkAlive(); err != nil {
		return err
	}
	if res == nil || res.kind != ResourceKindBuffer {
		return invalidArgf("write to a non-buffer resource")
	}
	if offset+uint64(len(data)) > res.size {
		return invalidArgf("write of %d bytes at %d exceeds buffer %q of %d bytes",
			len(data), offset, res.label, res.size)
	}
	if err := d.backend.WriteBuffer(res.native, offset, data); err != nil {
		return fmt.Errorf("rhi: write buffer %q: %w", res.label, err)
	}
	return nil
}

// DestroyResource destroys a buffer created by CreateBuffer.
func (d *Device) DestroyResource(res *Resource) error {
	if err := d.checkAlive(); err != nil {
		return err
	}
	if res == nil {
		return invalidArgf("nil resource")
	}
	d.mu.Lock()
	i := slices.Index(d.resources, res)
	if i >= 0 {
		d.resources = slices.Delete(d.resources, i, i+1)
	}
	d.mu.Unlock()
	if i < 0 {
		return invalidArgf("resource %q is not owned by this device", res.label)
	}
	return d.backend.DestroyBuffer(res.native)
}

// Queue returns the device queue with a public reference the caller must
// Release. It returns nil after teardown.
func (d *Device) Queue() *CommandQueue {
	d.mu.Lock()
	q := d.queue
	d.mu.Unlock()
	if q == nil || !q.acquire() {
		return nil
	}
	return q
}
