package rhi

// PipelineKind is the logical kind of a pipeline.
type PipelineKind uint8

const (
	PipelineKindRender PipelineKind = iota
	PipelineKindCompute
	PipelineKindRayTracing
)

// String returns the kind name.
func (k PipelineKind) String() string {
	switch k {
	case PipelineKindRender:
		return "Render"
	case PipelineKindCompute:
		return "Compute"
	case PipelineKindRayTracing:
		return "RayTracing"
	default:
		return "Unknown"
	}
}

// ShaderProgram is a linked program as produced by the reflection and compile
// service.
type ShaderProgram struct {
	// Label identifies the program in logs and persistent cache keys.
	Label string

	// Source is the backend-consumed program source (WGSL for backend/wgpu).
	Source string

	// EntryPoints lists the program's entry point names.
	EntryPoints []string

	// GlobalLayout is the layout of the program's global parameters; root
	// shader objects are created over it.
	GlobalLayout *TypeLayout

	// SpecializationParams is the number of generic or existential
	// parameters that must be bound before the program is fully concrete.
	SpecializationParams int
}

// Specializable reports whether the program has specialization parameters.
func (p *ShaderProgram) Specializable() bool {
	return p.SpecializationParams > 0
}

// PipelineDesc describes a pipeline to create.
type PipelineDesc struct {
	Kind    PipelineKind
	Label   string
	Program *ShaderProgram
}

// Pipeline is a pipeline state object. A pipeline whose program is
// specializable is virtual: it has no native pipeline and is resolved per
// binding through Device.ConcretePipeline.
type Pipeline struct {
	kind    PipelineKind
	label   string
	program *ShaderProgram
	virtual bool
	serial  uint64

	// set on specialized pipelines
	base *Pipeline
	args SpecializationArgs

	native any
}

func (p *Pipeline) Kind() PipelineKind      { return p.kind }
func (p *Pipeline) Label() string           { return p.label }
func (p *Pipeline) Program() *ShaderProgram { return p.program }

// IsVirtual reports whether the pipeline needs specialization before use.
func (p *Pipeline) IsVirtual() bool { return p.virtual }

// Base returns the virtual pipeline this pipeline was specialized from, or nil.
func (p *Pipeline) Base() *Pipeline { return p.base }

// SpecializationArgs returns the arguments a specialized pipeline was
// compiled with.
func (p *Pipeline) SpecializationArgs() SpecializationArgs { return p.args.Clone() }

// Native returns the backend payload, nil for virtual pipelines.
func (p *Pipeline) Native() any { return p.native }
