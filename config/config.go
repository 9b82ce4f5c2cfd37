// Package config loads the §6.3 configuration table this module exposes
// at runtime (the rest — word size, integer width, boxing strategy,
// float precision — are compile-time properties of the values package in
// this Go port, since Go cannot select a struct layout at runtime the way
// the original implementation's `#ifdef` matrix does; see DESIGN.md).
//
// mrblite has no config file of its own in the teacher project (`hey`
// takes CLI flags only), so this package borrows the nearest ecosystem
// convention visible in the retrieval pack: a YAML document unmarshaled
// with gopkg.in/yaml.v3. cmd/mrb's --config flag selects that file; no
// command-line flag overrides individual fields.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wudi/mrblite/heap"
	"github.com/wudi/mrblite/vm"
)

// Options is the full set of §6.3 runtime-tunable knobs, named to match
// the spec table so a YAML document reads as a direct transcription of
// it.
type Options struct {
	MethodCacheSize int  `yaml:"method_cache_size"`
	StackInit       int  `yaml:"stack_init"`
	HeapPageSize    int  `yaml:"heap_page_size"`
	ArenaSize       int  `yaml:"arena_size"`
	Generational    bool `yaml:"generational_gc"`
	GCStepRatioPct  int  `yaml:"gc_step_ratio_pct"`
	DebugHooks      bool `yaml:"debug_hooks"`
}

// Default mirrors vm.DefaultConfig()/heap.DefaultConfig() so a host that
// never touches config gets exactly the same tunables as one that loads
// this struct's zero-value-filled defaults explicitly.
func Default() Options {
	vc := vm.DefaultConfig()
	return Options{
		MethodCacheSize: vc.MethodCache,
		StackInit:       vc.StackInit,
		HeapPageSize:    vc.Heap.PageSize,
		ArenaSize:       vc.Heap.ArenaCapacity,
		Generational:    vc.Heap.Generational,
		GCStepRatioPct:  vc.Heap.StepRatioPct,
		DebugHooks:      vc.DebugHooks,
	}
}

// Load reads a YAML document from path and overlays it onto Default():
// a field absent from the document keeps its default value rather than
// zeroing out, since an operator's config file is usually a partial
// override, not a full restatement of every knob.
func Load(path string) (Options, error) {
	opts := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, err
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// VMConfig translates Options into the vm.Config/heap.Config pair Open
// expects, keeping the §6.3 table's flat shape on the config side while
// the vm/heap packages keep their own nested one.
func (o Options) VMConfig() vm.Config {
	return vm.Config{
		Heap: heap.Config{
			PageSize:          o.HeapPageSize,
			Generational:      o.Generational,
			ArenaCapacity:     o.ArenaSize,
			StepRatioPct:      o.GCStepRatioPct,
		},
		MethodCache: o.MethodCacheSize,
		StackInit:   o.StackInit,
		DebugHooks:  o.DebugHooks,
	}
}
