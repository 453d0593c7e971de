package rhi

// Backend is the capability table a native API supplies to a Device.
// Native handles travel through the core as opaque payloads, so the
// specialization and cache logic never branches on the concrete backend.
//
// Implementations may also implement SetLogger(*slog.Logger) to receive the
// logger configured with SetLogger.
type Backend interface {
	// CreateBuffer creates a native buffer of desc.Size bytes initialized
	// with data (which may be shorter than the buffer).
	CreateBuffer(desc *BufferDesc, data []byte) (any, error)

	// WriteBuffer uploads data into a native buffer at offset.
	WriteBuffer(buffer any, offset uint64, data []byte) error

	// DestroyBuffer releases a native buffer.
	DestroyBuffer(buffer any) error

	// CreatePipeline compiles and links a pipeline. req.Args is empty for
	// programs without specialization parameters. A rejected program is
	// reported as an error, preferably a *CompileError carrying diagnostics.
	CreatePipeline(req *PipelineRequest) (any, error)

	// DestroyPipeline releases a native pipeline.
	DestroyPipeline(pipeline any) error
}

// PipelineRequest is the input of Backend.CreatePipeline.
type PipelineRequest struct {
	Kind    PipelineKind
	Label   string
	Program *ShaderProgram

	// Args are the ordered concrete type arguments, possibly containing
	// the dynamic marker type.
	Args SpecializationArgs

	// ShaderCache is the device's persistent shader cache, or nil.
	ShaderCache PersistentShaderCache
}
