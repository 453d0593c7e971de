package rhi

import (
	"fmt"
	"sync/atomic"
)

// ObjectRole distinguishes program-level root objects from ordinary ones.
type ObjectRole uint8

const (
	RoleOrdinary ObjectRole = iota
	RoleRoot
)

// String returns the role name.
func (r ObjectRole) String() string {
	if r == RoleRoot {
		return "Root"
	}
	return "Ordinary"
}

// ObjectState is the lifecycle state of a ShaderObject. Transitions are
// monotonic: Initial, Initialized, Finalized.
type ObjectState uint8

const (
	// StateInitial accepts sub-objects that are not finalized yet.
	StateInitial ObjectState = iota
	// StateInitialized is entered once the object is read for
	// specialization; attached sub-objects must be finalized.
	StateInitialized
	// StateFinalized rejects every mutation.
	StateFinalized
)

// String returns the state name.
func (s ObjectState) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateInitialized:
		return "Initialized"
	case StateFinalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

// slotKey addresses one element of a binding range.
type slotKey struct {
	rangeIndex int
	arrayIndex int
}

// elementArgs are the specialization arguments contributed by one container
// element.
type elementArgs struct {
	args SpecializationArgs
	set  bool
}

// ShaderObject is one bound instance of a parameter type: ordinary data,
// bound sub-objects, bound resources and pending specialization overrides.
//
// A ShaderObject owns its children and holds a strong reference to its device
// until its last public reference is released. It is not safe for concurrent
// use.
type ShaderObject struct {
	layout  *ShaderObjectLayout
	role    ObjectRole
	program *ShaderProgram

	device BreakableRef[Device, *Device]
	refs   atomic.Int32

	state     ObjectState
	data      []byte
	objects   []*ShaderObject
	overrides []SpecializationArgs
	resources map[slotKey]*Resource

	// container objects
	elements      []elementArgs
	containerArgs SpecializationArgs

	// set only once finalized
	specialized *SpecializationArg

	// lazily materialized backing buffer of a structured buffer object
	buffer      *Resource
	bufferDirty bool
	retired     []*Resource
}

func newShaderObject(d *Device, layout *ShaderObjectLayout, role ObjectRole) *ShaderObject {
	o := &ShaderObject{
		layout:    layout,
		role:      role,
		resources: make(map[slotKey]*Resource),
	}
	o.refs.Store(1)
	o.device.SetStrong(d)
	if layout.container == ContainerNone {
		o.data = make([]byte, layout.element.ElementStride())
		o.objects = make([]*ShaderObject, layout.subObjectCount)
		o.overrides = make([]SpecializationArgs, layout.subObjectCount)
	}
	return o
}

// Layout returns the object's layout.
func (o *ShaderObject) Layout() *ShaderObjectLayout { return o.layout }

// ContainerType returns the container kind of the object's layout.
func (o *ShaderObject) ContainerType() ContainerType { return o.layout.container }

// Role reports whether this is a root object.
func (o *ShaderObject) Role() ObjectRole { return o.role }

// Program returns the program a root object was created for, nil otherwise.
func (o *ShaderObject) Program() *ShaderProgram { return o.program }

// State returns the lifecycle state.
func (o *ShaderObject) State() ObjectState { return o.state }

// IsFinalized reports whether the object is immutable.
func (o *ShaderObject) IsFinalized() bool { return o.state == StateFinalized }

// Data returns the ordinary data buffer. The caller must not modify it.
func (o *ShaderObject) Data() []byte { return o.data }

// ElementCount returns the number of element slots of a container object.
func (o *ShaderObject) ElementCount() int {
	if o.layout.container == ContainerNone {
		return 0
	}
	return len(o.objects)
}

func (o *ShaderObject) markInitialized() {
	if o.state == StateInitial {
		o.state = StateInitialized
	}
}

func (o *ShaderObject) checkMutable() error {
	if o.state == StateFinalized {
		return invalidStatef("%s object is finalized", o.layout.element.Type.FullName())
	}
	return nil
}

func (o *ShaderObject) checkAttach(child *ShaderObject) error {
	if child == nil {
		return invalidArgf("nil sub-object")
	}
	if child.role == RoleRoot {
		return invalidArgf("root object cannot be bound as a sub-object")
	}
	if child.layout.device != o.layout.device {
		return invalidArgf("sub-object belongs to another device")
	}
	if child == o || child.contains(o) {
		return invalidArgf("binding %s would create a cycle", child.layout.element.Type.FullName())
	}
	if o.state == StateInitialized && !child.IsFinalized() {
		return invalidStatef("sub-object %s must be finalized once %s is initialized",
			child.layout.element.Type.FullName(), o.layout.element.Type.FullName())
	}
	return nil
}

// contains reports whether target is reachable from o's children.
func (o *ShaderObject) contains(target *ShaderObject) bool {
	for _, c := range o.objects {
		if c != nil && (c == target || c.contains(target)) {
			return true
		}
	}
	return false
}

// bindChild stores child in slot, taking a reference on it and dropping the
// reference on the previous occupant.
func (o *ShaderObject) bindChild(slot int, child *ShaderObject) {
	child.Retain()
	prev := o.objects[slot]
	o.objects[slot] = child
	if prev != nil {
		prev.Release()
	}
}

// SetData copies data into the ordinary data buffer at offset.UniformOffset.
// Container objects grow their buffer to fit.
func (o *ShaderObject) SetData(offset ShaderOffset, data []byte) error {
	if err := o.checkMutable(); err != nil {
		return err
	}
	off := offset.UniformOffset
	if off < 0 {
		return invalidArgf("negative uniform offset %d", off)
	}
	end := off + len(data)
	if end > len(o.data) {
		if o.layout.container == ContainerNone {
			return invalidArgf("write of %d bytes at %d exceeds %d byte buffer", len(data), off, len(o.data))
		}
		o.data = append(o.data, make([]byte, end-len(o.data))...)
	}
	copy(o.data[off:end], data)
	o.bufferDirty = true
	return nil
}

// SetObject binds child at offset.
//
// On a container object, offset.BindingArrayIndex selects the element slot;
// the child's data is copied into the element, after an existential header
// when the element type is an interface. On other objects the binding range
// decides: existential fields get a header and an inline payload, buffer
// fields bound to a structured-buffer object get its backing buffer, and
// constant buffers and parameter blocks keep the child for specialization.
//
// An existential value that does not fit its field's inline payload returns
// ErrUnsupported; the child stays bound so specialization can still see it.
func (o *ShaderObject) SetObject(offset ShaderOffset, child *ShaderObject) error {
	if err := o.checkMutable(); err != nil {
		return err
	}
	if err := o.checkAttach(child); err != nil {
		return err
	}
	if o.layout.container != ContainerNone {
		return o.setElement(offset.BindingArrayIndex, child)
	}

	slot, br, err := o.layout.subObjectSlot(offset)
	if err != nil {
		return err
	}
	switch br.Type {
	case BindingTypeExistentialValue:
		return o.setExistential(offset, slot, br, child)
	case BindingTypeRawBuffer, BindingTypeMutableRawBuffer:
		var res *Resource
		if child.layout.container == ContainerStructuredBuffer {
			if res, err = child.bufferResource(); err != nil {
				return err
			}
		}
		o.bindChild(slot, child)
		key := slotKey{offset.BindingRangeIndex, offset.BindingArrayIndex}
		if res != nil {
			o.resources[key] = res
		} else {
			delete(o.resources, key)
		}
	default:
		o.bindChild(slot, child)
	}
	return nil
}

func (o *ShaderObject) setExistential(offset ShaderOffset, slot int, br BindingRange, child *ShaderObject) error {
	off := offset.UniformOffset
	if off < 0 || off+ExistentialHeaderSize > len(o.data) {
		return invalidArgf("existential header at %d exceeds %d byte buffer", off, len(o.data))
	}
	concrete := child.layout.element
	field := br.LeafTypeLayout

	var header [ExistentialHeaderSize]byte
	if err := o.layout.device.writeExistentialHeader(header[:], concrete.Type, field.Type); err != nil {
		return err
	}
	copy(o.data[off:], header[:])
	o.bindChild(slot, child)

	// Only the value's Size bytes are copied. Stride padding and whatever
	// follows the payload in the parent belong to other fields.
	payload := o.data[off+ExistentialHeaderSize:]
	size := min(concrete.Size, len(child.data))
	if !o.layout.device.fitter(concrete, field) ||
		size > field.ExistentialPayloadSize || field.ExistentialPayloadSize > len(payload) {
		return fmt.Errorf("%w: %s (%d bytes) in %d byte payload of %s",
			ErrUnsupported, concrete.Type.FullName(), concrete.Size,
			field.ExistentialPayloadSize, field.Type.FullName())
	}
	payload = payload[:field.ExistentialPayloadSize]
	clear(payload)
	copy(payload, child.data[:size])
	return nil
}

func (o *ShaderObject) setElement(index int, child *ShaderObject) error {
	if index < 0 {
		return invalidArgf("negative element index %d", index)
	}
	element := o.layout.element
	stride := element.ElementStride()

	var (
		args       SpecializationArgs
		header     [ExistentialHeaderSize]byte
		payloadOff int
	)
	if element.Kind() == TypeKindInterface {
		arg, err := child.specializedArg()
		if err != nil {
			return err
		}
		if err := o.layout.device.writeExistentialHeader(header[:], arg.Type, element.Type); err != nil {
			return err
		}
		payloadOff = ExistentialHeaderSize
		args = SpecializationArgs{arg}
	} else {
		var err error
		if args, err = child.collectSpecializationArgs(); err != nil {
			return err
		}
	}
	if payloadOff+len(child.data) > stride {
		return fmt.Errorf("%w: %s element of %d bytes exceeds stride %d",
			ErrUnsupported, child.layout.element.Type.FullName(), payloadOff+len(child.data), stride)
	}
	unified, err := o.unifyElements(index, args, true)
	if err != nil {
		return err
	}

	o.growElements(index)
	base := index * stride
	if payloadOff > 0 {
		copy(o.data[base:], header[:])
	}
	copy(o.data[base+payloadOff:base+stride], child.data)
	o.elements[index] = elementArgs{args: args, set: true}
	o.containerArgs = unified
	o.bindChild(index, child)
	o.bufferDirty = true
	return nil
}

// growElements makes room for element index in every per-element table.
func (o *ShaderObject) growElements(index int) {
	if index < len(o.objects) {
		return
	}
	n := index + 1
	o.objects = append(o.objects, make([]*ShaderObject, n-len(o.objects))...)
	o.elements = append(o.elements, make([]elementArgs, n-len(o.elements))...)
	if size := n * o.layout.element.ElementStride(); size > len(o.data) {
		o.data = append(o.data, make([]byte, size-len(o.data))...)
	}
}

// unifyElements returns the container arguments that result from element
// index contributing args, or from clearing it when set is false.
func (o *ShaderObject) unifyElements(index int, args SpecializationArgs, set bool) (SpecializationArgs, error) {
	u := argUnifier{dynamic: o.layout.device.dynamic}
	for i, e := range o.elements {
		if i != index && e.set {
			if err := u.add(e.args); err != nil {
				return nil, err
			}
		}
	}
	if set {
		if err := u.add(args); err != nil {
			return nil, err
		}
	}
	if u.widened > 0 {
		Logger().Warn("rhi: container specialization widened to dynamic type",
			"type", o.layout.element.Type.FullName(),
			"element", index,
			"positions", u.widened)
	}
	return u.args, nil
}

// Object returns the sub-object bound at offset, or nil.
func (o *ShaderObject) Object(offset ShaderOffset) *ShaderObject {
	if o.layout.container != ContainerNone {
		i := offset.BindingArrayIndex
		if i < 0 || i >= len(o.objects) {
			return nil
		}
		return o.objects[i]
	}
	slot, _, err := o.layout.subObjectSlot(offset)
	if err != nil {
		return nil
	}
	return o.objects[slot]
}

// SetSpecializationArgs supplies explicit type arguments for the sub-object
// slot at offset. They replace the arguments that would be derived from the
// bound sub-object. On a container object they replace the arguments of the
// element at offset.BindingArrayIndex. Passing no types clears the override.
func (o *ShaderObject) SetSpecializationArgs(offset ShaderOffset, types ...TypeReflection) error {
	if err := o.checkMutable(); err != nil {
		return err
	}
	args, err := o.layout.device.specializationArgs(types)
	if err != nil {
		return err
	}

	if o.layout.container != ContainerNone {
		index := offset.BindingArrayIndex
		if index < 0 {
			return invalidArgf("negative element index %d", index)
		}
		unified, err := o.unifyElements(index, args, args != nil)
		if err != nil {
			return err
		}
		switch {
		case args != nil:
			o.growElements(index)
			o.elements[index] = elementArgs{args: args, set: true}
		case index < len(o.elements):
			o.elements[index] = elementArgs{}
		}
		o.containerArgs = unified
		return nil
	}

	slot, _, err := o.layout.subObjectSlot(offset)
	if err != nil {
		return err
	}
	o.overrides[slot] = args
	return nil
}

// SetBinding binds a texture, sampler or buffer resource at offset.
func (o *ShaderObject) SetBinding(offset ShaderOffset, res *Resource) error {
	if err := o.checkMutable(); err != nil {
		return err
	}
	if res == nil {
		return invalidArgf("nil resource")
	}
	if o.layout.container != ContainerNone {
		return invalidArgf("container objects bind elements, not resources")
	}
	br, err := o.layout.bindingRange(offset)
	if err != nil {
		return err
	}
	var want ResourceKind
	switch br.Type {
	case BindingTypeTexture:
		want = ResourceKindTexture
	case BindingTypeSampler:
		want = ResourceKindSampler
	case BindingTypeRawBuffer, BindingTypeMutableRawBuffer:
		want = ResourceKindBuffer
	default:
		return invalidArgf("binding range %d (%s) does not bind resources", offset.BindingRangeIndex, br.Type)
	}
	if res.kind != want {
		return invalidArgf("binding range %d (%s) needs a %s, got %s",
			offset.BindingRangeIndex, br.Type, want, res.kind)
	}
	o.resources[slotKey{offset.BindingRangeIndex, offset.BindingArrayIndex}] = res
	return nil
}

// Binding returns the resource bound at offset.
func (o *ShaderObject) Binding(offset ShaderOffset) (*Resource, bool) {
	res, ok := o.resources[slotKey{offset.BindingRangeIndex, offset.BindingArrayIndex}]
	return res, ok
}

// Finalize finalizes every attached sub-object that is not finalized yet and
// then makes the object immutable. Finalizing twice fails.
func (o *ShaderObject) Finalize() error {
	if o.state == StateFinalized {
		return invalidStatef("%s object already finalized", o.layout.element.Type.FullName())
	}
	for _, child := range o.objects {
		if child == nil || child.IsFinalized() {
			continue
		}
		if err := child.Finalize(); err != nil {
			return fmt.Errorf("rhi: finalize %s: %w", o.layout.element.Type.FullName(), err)
		}
	}
	o.state = StateFinalized
	return nil
}

// bufferResource returns the buffer backing a structured-buffer object,
// creating it on first use and re-uploading the data after changes. A buffer
// too small for the current data is replaced; the old one is kept until the
// object is released since bindings may still refer to it.
//
// Not safe for concurrent use: two racing callers may both create a buffer.
func (o *ShaderObject) bufferResource() (*Resource, error) {
	if o.buffer != nil && !o.bufferDirty {
		return o.buffer, nil
	}
	d := o.layout.device
	size := uint64(len(o.data))
	if o.buffer != nil && o.buffer.size >= size {
		if err := d.writeBuffer(o.buffer, 0, o.data); err != nil {
			return nil, err
		}
		o.bufferDirty = false
		return o.buffer, nil
	}

	stride := o.layout.element.ElementStride()
	res, err := d.CreateBuffer(&BufferDesc{
		Label:         o.layout.element.Type.FullName() + " structured buffer",
		Size:          max(size, uint64(stride)),
		Usage:         structuredBufferUsage,
		ElementStride: stride,
	}, o.data)
	if err != nil {
		return nil, err
	}
	if o.buffer != nil {
		o.retired = append(o.retired, o.buffer)
	}
	o.buffer = res
	o.bufferDirty = false
	return res, nil
}

// Retain adds a public reference.
func (o *ShaderObject) Retain() {
	o.refs.Add(1)
}

// Release drops a public reference. Dropping the last one releases the
// children and the backing buffers, then breaks the object's claim on the
// device.
func (o *ShaderObject) Release() {
	if o.refs.Add(-1) != 0 {
		return
	}
	children := o.objects
	o.objects = nil
	for _, c := range children {
		if c != nil {
			c.Release()
		}
	}
	if d := o.device.Get(); d != nil {
		for _, res := range append(o.retired, o.buffer) {
			if res == nil {
				continue
			}
			if err := d.DestroyResource(res); err != nil {
				Logger().Warn("rhi: destroy structured buffer", "label", res.label, "err", err)
			}
		}
	}
	o.buffer, o.retired = nil, nil

	// Last public reference is gone. BreakStrong may tear down the device,
	// so nothing after it dereferences the device.
	o.device.BreakStrong()
}
