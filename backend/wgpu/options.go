// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import "github.com/gogpu/rhi"

// DefaultEntryPoint is the compute entry point used when neither the program
// nor WithEntryPoint names one.
const DefaultEntryPoint = "main"

// Option configures a Backend.
type Option func(*options)

type options struct {
	shaderCache rhi.PersistentShaderCache
	entryPoint  string
}

func defaultOptions() options {
	return options{entryPoint: DefaultEntryPoint}
}

// WithShaderCache sets the persistent cache for compiled SPIR-V. It takes
// precedence over the cache a device passes with each pipeline request.
func WithShaderCache(c rhi.PersistentShaderCache) Option {
	return func(o *options) {
		o.shaderCache = c
	}
}

// WithEntryPoint sets the fallback compute entry point for programs that
// list none.
func WithEntryPoint(name string) Option {
	return func(o *options) {
		if name != "" {
			o.entryPoint = name
		}
	}
}
