// Package rhi is the backend-agnostic core of a render hardware interface:
// shader objects, their specialization, and the caches that let repeated
// bindings with identical effective types reuse compiled pipelines.
//
// # Overview
//
// A client fills a tree of [ShaderObject] values with ordinary data, bound
// sub-objects and resources. Fields of interface type are existential: the
// concrete type of the bound value is only known at bind time, so the
// program must be specialized for it. Before dispatch the device collects
// the ordered type arguments from the root object and looks up
// (pipeline, arguments) in its [PipelineCache]; the backend compiles only on
// a miss.
//
//	dev, err := rhi.NewDevice(backend)
//	if err != nil {
//		return err
//	}
//	defer dev.Release()
//
//	pipeline, err := dev.CreatePipeline(&rhi.PipelineDesc{
//		Kind:    rhi.PipelineKindCompute,
//		Program: program,
//	})
//	root, err := dev.CreateRootShaderObject(program)
//	defer root.Release()
//
//	off, _ := root.Layout().OffsetOf("material", 0)
//	_ = root.SetObject(off, material)
//
//	concrete, err := dev.ConcretePipeline(pipeline, root)
//
// # Type identities
//
// Types are compared through [ComponentID] values issued by the device's
// [TypeInterner]. Two type-equal inputs always map to the same id, and ids
// are never reused while the device lives.
//
// # Widening
//
// When elements of one array or structured buffer disagree about the type at
// a specialization position, that position becomes [DynamicType] instead of
// failing. The program then runs a slower dynamic-dispatch path.
//
// # Ownership
//
// A device and the objects it creates refer to each other. Objects hold a
// [BreakableRef] to the device that is strong while the object has public
// references and is broken in the hook that drops the last one. The device
// tears down its caches and backend objects when its last claim is released.
//
// # Concurrency
//
// By default nothing is synchronized; one goroutine drives a device at a
// time. [WithConcurrentAccess] makes the interner and pipeline cache safe
// for concurrent use. Shader objects are never safe for concurrent use.
//
// # Logging
//
// rhi is silent by default. See [SetLogger].
package rhi

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0-alpha.1"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = "alpha.1"
)
