// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/rhi"
)

// spirvTarget is the target index of SPIR-V blobs in persistent cache keys.
const spirvTarget = 0

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// specializationPrelude declares one WGSL constant per specialization
// argument, holding the argument's interned type id.
func specializationPrelude(args rhi.SpecializationArgs) string {
	if len(args) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, arg := range args {
		fmt.Fprintf(&sb, "const specialization_arg_%d: u32 = %du; // %s\n", i, uint32(arg.ID), arg.Type.FullName())
	}
	return sb.String()
}

// specializedSource returns the WGSL compiled for program with args.
func specializedSource(program *rhi.ShaderProgram, args rhi.SpecializationArgs) string {
	return specializationPrelude(args) + program.Source
}

// compileSPIRV compiles WGSL source to SPIR-V bytes.
func compileSPIRV(source string) ([]byte, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	if len(spirv) < 4 || len(spirv)%4 != 0 {
		return nil, fmt.Errorf("naga produced %d bytes, not a SPIR-V module", len(spirv))
	}
	return spirv, nil
}

// spirvWords converts SPIR-V bytes to little-endian 32-bit words. It reports
// false for blobs that are not a SPIR-V module, such as stale cache entries.
func spirvWords(spirv []byte) ([]uint32, bool) {
	if len(spirv) < 4 || len(spirv)%4 != 0 {
		return nil, false
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, false
	}
	return words, true
}
