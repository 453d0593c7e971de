package rhi

// DeviceOption configures a Device during creation.
//
// Example:
//
//	dev, err := rhi.NewDevice(backend,
//		rhi.WithLabel("main"),
//		rhi.WithPersistentShaderCache(shadercache.NewMemoryCache(0)),
//	)
type DeviceOption func(*deviceOptions)

// deviceOptions holds optional configuration for Device creation.
type deviceOptions struct {
	label       string
	shaderCache PersistentShaderCache
	fitter      PayloadFitter
	reflector   Reflector
	concurrent  bool
}

// defaultDeviceOptions returns the default device options.
func defaultDeviceOptions() deviceOptions {
	return deviceOptions{
		label:  "rhi",
		fitter: DefaultPayloadFitter,
	}
}

// WithLabel names the device in log output.
func WithLabel(label string) DeviceOption {
	return func(o *deviceOptions) {
		o.label = label
	}
}

// WithPersistentShaderCache sets the key to blob store backends consult
// before compiling a specialized program.
func WithPersistentShaderCache(c PersistentShaderCache) DeviceOption {
	return func(o *deviceOptions) {
		o.shaderCache = c
	}
}

// WithPayloadFitter overrides the predicate that decides whether a concrete
// value fits inline in an existential field. A nil fitter keeps the default.
func WithPayloadFitter(f PayloadFitter) DeviceOption {
	return func(o *deviceOptions) {
		if f != nil {
			o.fitter = f
		}
	}
}

// WithReflector sets the source of witness-table ids written into
// existential headers. Without it ids are derived from the device's type
// interner.
func WithReflector(r Reflector) DeviceOption {
	return func(o *deviceOptions) {
		o.reflector = r
	}
}

// WithConcurrentAccess makes the type interner and pipeline cache safe for
// use from several goroutines. Concurrent specializations of one pipeline
// key share a single compile.
//
// Shader objects remain single-threaded.
func WithConcurrentAccess() DeviceOption {
	return func(o *deviceOptions) {
		o.concurrent = true
	}
}
