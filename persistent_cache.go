package rhi

import (
	"fmt"
	"hash/fnv"
)

// PersistentShaderCache is an external key to blob store for compiled
// programs. The core never interprets the blobs; backends decide what to
// store.
//
// Implementations must be safe for concurrent use.
type PersistentShaderCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, blob []byte)
}

// ShaderCacheKey derives the persistent cache key of program specialized
// with args for the backend target index target.
func ShaderCacheKey(program *ShaderProgram, args SpecializationArgs, target int) string {
	h := fnv.New64a()
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	write(program.Label)
	write(program.Source)
	for _, ep := range program.EntryPoints {
		write(ep)
	}
	for _, name := range args.Names() {
		write(name)
	}
	return fmt.Sprintf("%016x-%d", h.Sum64(), target)
}
