package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/simkernel/internal/content"
	"github.com/roach88/simkernel/internal/world"
)

// Mode controls how errors are handled while compiling a program.
type Mode int

const (
	// FailFast stops on the first error encountered.
	FailFast Mode = iota
	// CollectAll collects all errors before returning.
	CollectAll
)

// Program is everything compiled from one CUE instance: the dispatchers
// declared under "dispatcher" and the root descriptors under "content",
// both in declaration order.
type Program struct {
	Dispatchers []*world.SchemaDispatcher `json:"dispatchers"`
	Content     []content.Descriptor      `json:"content"`

	// External names dispatchers registered from Go that content may
	// reference without declaring them.
	External []string `json:"-"`
}

// Register adds every compiled dispatcher to w.
func (p *Program) Register(w *world.World) error {
	for _, d := range p.Dispatchers {
		if err := w.RegisterDispatcher(d); err != nil {
			return err
		}
	}
	return nil
}

// Root returns the root descriptor with the given name.
func (p *Program) Root(name string) (content.Descriptor, bool) {
	for _, d := range p.Content {
		if d.Name == name {
			return d, true
		}
	}
	return content.Descriptor{}, false
}

// LoadInstance loads and builds the CUE package in dir.
func LoadInstance(dir string) (cue.Value, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("loading CUE files: %w", inst.Err)
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

// CompileProgram compiles every dispatcher and content root in v.
// With FailFast the first error is returned alone; with CollectAll every
// failing entry is reported and the rest still compile.
func CompileProgram(v cue.Value, mode Mode) (*Program, []error) {
	p := &Program{}
	var errs []error

	fail := func(err error) bool {
		errs = append(errs, err)
		return mode == FailFast
	}

	if dv := v.LookupPath(cue.ParsePath("dispatcher")); dv.Exists() {
		iter, err := dv.Fields()
		if err != nil {
			return p, []error{formatCUEError(err)}
		}
		for iter.Next() {
			d, err := CompileDispatcher(iter.Value())
			if err != nil {
				if fail(fmt.Errorf("dispatcher.%s: %w", iter.Label(), err)) {
					return p, errs
				}
				continue
			}
			p.Dispatchers = append(p.Dispatchers, d)
		}
	}

	if cv := v.LookupPath(cue.ParsePath("content")); cv.Exists() {
		iter, err := cv.Fields()
		if err != nil {
			return p, append(errs, formatCUEError(err))
		}
		for iter.Next() {
			d, err := CompileContent(iter.Value())
			if err != nil {
				if fail(fmt.Errorf("content.%s: %w", iter.Label(), err)) {
					return p, errs
				}
				continue
			}
			p.Content = append(p.Content, d)
		}
	}

	if len(p.Dispatchers) == 0 && len(p.Content) == 0 && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("no dispatchers or content found"))
	}
	return p, errs
}
