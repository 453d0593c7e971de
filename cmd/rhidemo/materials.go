package main

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/rhi"
)

// materials is the reflection of the demo shader:
//
//	interface IMaterial { float3 shade(float3 n); }
//	struct Lambert : IMaterial { float3 albedo; }
//	struct Phong   : IMaterial { float3 albedo; float shininess; }
//	IMaterial material;
//	StructuredBuffer<IMaterial> lights;
type materials struct {
	iface    *rhi.TypeLayout
	concrete []*rhi.TypeLayout
	globals  *rhi.TypeLayout
}

func newMaterials() *materials {
	m := &materials{}
	m.iface = &rhi.TypeLayout{
		Type:                   rhi.NewType("IMaterial", rhi.TypeKindInterface),
		Size:                   48,
		Stride:                 48,
		ExistentialPayloadSize: 32,
	}
	m.concrete = []*rhi.TypeLayout{
		{Type: rhi.NewType("Lambert", rhi.TypeKindStruct), Size: 12, Stride: 16},
		{Type: rhi.NewType("Phong", rhi.TypeKindStruct), Size: 16, Stride: 16},
	}
	m.globals = &rhi.TypeLayout{
		Type:   rhi.NewType("Globals", rhi.TypeKindStruct),
		Size:   48,
		Stride: 48,
		BindingRanges: []rhi.BindingRange{
			{Name: "material", Type: rhi.BindingTypeExistentialValue, Count: 1, SubObjectIndex: 0, LeafTypeLayout: m.iface},
			{Name: "lights", Type: rhi.BindingTypeRawBuffer, Count: 1, SubObjectIndex: 1},
		},
		SubObjectRanges: []rhi.SubObjectRange{{BindingRangeIndex: 0}, {BindingRangeIndex: 1}},
	}
	return m
}

// value creates a finalized material object of layout tl with every float
// set to v.
func (m *materials) value(dev *rhi.Device, tl *rhi.TypeLayout, v float32) (*rhi.ShaderObject, error) {
	o, err := dev.CreateShaderObject(tl)
	if err != nil {
		return nil, err
	}
	data := make([]byte, tl.Size)
	for off := 0; off+4 <= len(data); off += 4 {
		binary.LittleEndian.PutUint32(data[off:], math.Float32bits(v))
	}
	if err := o.SetData(rhi.ShaderOffset{}, data); err != nil {
		o.Release()
		return nil, err
	}
	if err := o.Finalize(); err != nil {
		o.Release()
		return nil, err
	}
	return o, nil
}

// scene builds the finalized root object of scene i. The material and light
// types vary with i, so scenes share a handful of specializations.
func (m *materials) scene(dev *rhi.Device, program *rhi.ShaderProgram, i, lights int) (*rhi.ShaderObject, error) {
	root, err := dev.CreateRootShaderObject(program)
	if err != nil {
		return nil, err
	}
	if err := m.fill(dev, root, i, lights); err != nil {
		root.Release()
		return nil, err
	}
	return root, nil
}

func (m *materials) fill(dev *rhi.Device, root *rhi.ShaderObject, i, lights int) error {
	material, err := m.value(dev, m.concrete[i%len(m.concrete)], float32(i))
	if err != nil {
		return err
	}
	defer material.Release()
	off, err := root.Layout().OffsetOf("material", 0)
	if err != nil {
		return err
	}
	if err := root.SetObject(off, material); err != nil {
		return err
	}

	buf, err := dev.CreateContainerShaderObject(m.iface, rhi.ContainerStructuredBuffer)
	if err != nil {
		return err
	}
	defer buf.Release()
	for l := range lights {
		// Even scenes use a single light type. Odd scenes alternate types
		// and widen to the dynamic marker.
		tl := m.concrete[(l*(i%2))%len(m.concrete)]
		light, err := m.value(dev, tl, float32(l))
		if err != nil {
			return err
		}
		err = buf.SetObject(rhi.ShaderOffset{BindingArrayIndex: l}, light)
		light.Release()
		if err != nil {
			return err
		}
	}
	if off, err = root.Layout().OffsetOf("lights", 0); err != nil {
		return err
	}
	if err := root.SetObject(off, buf); err != nil {
		return err
	}
	return root.Finalize()
}
