// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements rhi.Backend on the gogpu/wgpu hardware abstraction
// layer.
//
// Buffers map to hal buffers created with the requested usage and uploaded
// through the device queue. Pipelines are compute pipelines: the program's
// WGSL source is prefixed with one constant per specialization argument,
//
//	const specialization_arg_0: u32 = 7u; // Lambert
//
// compiled to SPIR-V with gogpu/naga, and linked into a hal compute pipeline.
// Compiled SPIR-V is stored in the persistent shader cache when one is
// configured, so a later process skips naga for known argument lists.
//
// # Usage
//
//	b, err := wgpu.New(halDevice, halQueue, wgpu.WithEntryPoint("main"))
//	if err != nil {
//		return err
//	}
//	dev, err := rhi.NewDevice(b)
//
// A device shared with a host application is taken from any provider exposing
// HalDevice() and HalQueue():
//
//	b, err := wgpu.NewFromProvider(provider)
//
// # Thread Safety
//
// Backend is safe for concurrent use. Compiles run without holding the
// backend lock.
package wgpu
