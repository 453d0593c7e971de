// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"testing"

	"github.com/gogpu/rhi"
)

// materialLayouts returns a root layout with one IMaterial field and a
// structured buffer of IMaterial, plus two concrete material layouts.
func materialLayouts() (root, iface, lambert, phong *rhi.TypeLayout) {
	iface = &rhi.TypeLayout{
		Type:                   rhi.NewType("IMaterial", rhi.TypeKindInterface),
		Size:                   32,
		Stride:                 32,
		ExistentialPayloadSize: 16,
	}
	lambert = &rhi.TypeLayout{Type: rhi.NewType("Lambert", rhi.TypeKindStruct), Size: 8, Stride: 8}
	phong = &rhi.TypeLayout{Type: rhi.NewType("Phong", rhi.TypeKindStruct), Size: 8, Stride: 8}
	root = &rhi.TypeLayout{
		Type:   rhi.NewType("Globals", rhi.TypeKindStruct),
		Size:   32,
		Stride: 32,
		BindingRanges: []rhi.BindingRange{
			{Name: "material", Type: rhi.BindingTypeExistentialValue, Count: 1, SubObjectIndex: 0, LeafTypeLayout: iface},
			{Name: "lights", Type: rhi.BindingTypeRawBuffer, Count: 1, SubObjectIndex: 1},
		},
		SubObjectRanges: []rhi.SubObjectRange{{BindingRangeIndex: 0}, {BindingRangeIndex: 1}},
	}
	return root, iface, lambert, phong
}

func mustValue(t *testing.T, dev *rhi.Device, tl *rhi.TypeLayout) *rhi.ShaderObject {
	t.Helper()
	o, err := dev.CreateShaderObject(tl)
	if err != nil {
		t.Fatalf("CreateShaderObject(%s) failed: %v", tl.Type.FullName(), err)
	}
	if err := o.SetData(rhi.ShaderOffset{}, make([]byte, tl.Size)); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	return o
}

func mustOffset(t *testing.T, o *rhi.ShaderObject, name string) rhi.ShaderOffset {
	t.Helper()
	off, err := o.Layout().OffsetOf(name, 0)
	if err != nil {
		t.Fatalf("OffsetOf(%s) failed: %v", name, err)
	}
	return off
}

func TestDeviceSpecializesOnHAL(t *testing.T) {
	b := newTestBackend(t)
	dev, err := rhi.NewDevice(b, rhi.WithLabel("hal"))
	if err != nil {
		t.Fatalf("NewDevice failed: %v", err)
	}
	defer dev.Release()

	rootLayout, iface, lambert, phong := materialLayouts()
	program := &rhi.ShaderProgram{
		Label:                "shade",
		Source:               computeSource,
		EntryPoints:          []string{"main"},
		GlobalLayout:         rootLayout,
		SpecializationParams: 2,
	}
	virtual, err := dev.CreatePipeline(&rhi.PipelineDesc{Kind: rhi.PipelineKindCompute, Program: program})
	if err != nil {
		t.Fatalf("CreatePipeline failed: %v", err)
	}

	lights, err := dev.CreateContainerShaderObject(iface, rhi.ContainerStructuredBuffer)
	if err != nil {
		t.Fatalf("CreateContainerShaderObject failed: %v", err)
	}
	for i, tl := range []*rhi.TypeLayout{lambert, phong} {
		elem := mustValue(t, dev, tl)
		if err := elem.Finalize(); err != nil {
			t.Fatal(err)
		}
		if err := lights.SetObject(rhi.ShaderOffset{BindingArrayIndex: i}, elem); err != nil {
			t.Fatalf("SetObject(lights[%d]) failed: %v", i, err)
		}
		elem.Release()
	}

	root, err := dev.CreateRootShaderObject(program)
	if err != nil {
		t.Fatalf("CreateRootShaderObject failed: %v", err)
	}
	defer root.Release()
	material := mustValue(t, dev, phong)
	if err := root.SetObject(mustOffset(t, root, "material"), material); err != nil {
		t.Fatalf("SetObject(material) failed: %v", err)
	}
	material.Release()
	if err := root.SetObject(mustOffset(t, root, "lights"), lights); err != nil {
		t.Fatalf("SetObject(lights) failed: %v", err)
	}
	lights.Release()
	if err := root.Finalize(); err != nil {
		t.Fatal(err)
	}

	// The structured buffer was materialized as a hal buffer.
	res, ok := root.Binding(mustOffset(t, root, "lights"))
	if !ok {
		t.Fatal("lights buffer not bound")
	}
	if buf, ok := res.Native().(*Buffer); !ok || buf.HAL() == nil {
		t.Errorf("lights native = %T, want *Buffer", res.Native())
	}

	concrete, err := dev.ConcretePipeline(virtual, root)
	if err != nil {
		var ce *rhi.CompileError
		if errors.As(err, &ce) && len(ce.Diagnostics) > 0 {
			t.Skipf("Skipping: naga rejected the test shader: %v", err)
		}
		t.Fatalf("ConcretePipeline failed: %v", err)
	}
	names := concrete.SpecializationArgs().Names()
	if len(names) != 2 || names[0] != "Phong" || names[1] != rhi.DynamicTypeName {
		t.Errorf("args = %v, want [Phong %s]", names, rhi.DynamicTypeName)
	}
	if p, ok := concrete.Native().(*Pipeline); !ok || p.HAL() == nil {
		t.Errorf("native = %T, want compiled *Pipeline", concrete.Native())
	}

	again, err := dev.ConcretePipeline(virtual, root)
	if err != nil {
		t.Fatal(err)
	}
	if again != concrete {
		t.Error("second resolution did not reuse the cached pipeline")
	}
	if compiles, _ := b.Stats(); compiles != 1 {
		t.Errorf("compiles = %d, want 1", compiles)
	}
}
