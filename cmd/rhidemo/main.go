// Command rhidemo specializes a shading pipeline for many material
// combinations on the noop HAL device and reports how the pipeline cache
// deduplicated the compiles.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/backend/wgpu"
	"github.com/gogpu/rhi/shadercache"
	"github.com/gogpu/wgpu/hal/noop"
	"golang.org/x/sync/errgroup"
)

const shaderSource = `@compute @workgroup_size(64)
fn main() {}
`

func main() {
	var (
		scenes  = flag.Int("scenes", 32, "number of scenes specialized concurrently")
		lights  = flag.Int("lights", 2, "lights per scene")
		verbose = flag.Bool("v", false, "log cache and compile activity to stderr")
	)
	flag.Parse()
	if *scenes < 1 || *lights < 1 {
		log.Fatal("rhidemo: -scenes and -lights must be at least 1")
	}

	if *verbose {
		rhi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	if err := run(*scenes, *lights); err != nil {
		log.Fatalf("rhidemo: %v", err)
	}
}

func run(scenes, lights int) error {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	defer instance.Destroy()
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("no adapters")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("open adapter: %w", err)
	}
	defer open.Device.Destroy()

	cache := shadercache.NewMemoryCache(0)
	backend, err := wgpu.New(open.Device, open.Queue)
	if err != nil {
		return err
	}
	dev, err := rhi.NewDevice(backend,
		rhi.WithLabel("rhidemo"),
		rhi.WithPersistentShaderCache(cache),
		rhi.WithConcurrentAccess(),
	)
	if err != nil {
		return err
	}
	defer dev.Release()

	m := newMaterials()
	program := &rhi.ShaderProgram{
		Label:                "shade",
		Source:               shaderSource,
		EntryPoints:          []string{"main"},
		GlobalLayout:         m.globals,
		SpecializationParams: 2,
	}
	virtual, err := dev.CreatePipeline(&rhi.PipelineDesc{Kind: rhi.PipelineKindCompute, Program: program})
	if err != nil {
		return err
	}

	results := make([]*rhi.Pipeline, scenes)
	var g errgroup.Group
	for i := range scenes {
		g.Go(func() error {
			root, err := m.scene(dev, program, i, lights)
			if err != nil {
				return fmt.Errorf("scene %d: %w", i, err)
			}
			defer root.Release()
			p, err := dev.ConcretePipeline(virtual, root)
			if err != nil {
				return fmt.Errorf("scene %d: %w", i, err)
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	seen := make(map[*rhi.Pipeline]int)
	for _, p := range results {
		seen[p]++
	}
	for p, n := range seen {
		fmt.Printf("%-24v %3d scenes\n", p.SpecializationArgs().Names(), n)
	}

	stats := dev.PipelineCache().Stats()
	compiles, hits := backend.Stats()
	fmt.Printf("pipelines: %d cached, %d compiles, %d failures\n", stats.Entries, stats.Compiles, stats.Failures)
	fmt.Printf("naga: %d compiles, %d shader cache hits, %d bytes cached\n", compiles, hits, cache.Stats().Bytes)
	return nil
}
