package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/simkernel/internal/actualize"
	"github.com/roach88/simkernel/internal/compiler"
	"github.com/roach88/simkernel/internal/content"
	"github.com/roach88/simkernel/internal/store"
	"github.com/roach88/simkernel/internal/tables"
	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// Harness drives one world for one scenario.
type Harness struct {
	world    *world.World
	store    *store.Store
	recorder *store.Recorder
	frames   *actualize.Collector
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh world with a fresh in-memory event log.
// The returned error reports problems with the scenario itself (content
// that fails to compile, a failing setup step); behavior that differs
// from the scenario's expectations is reported through Result.
//
// Execution flow:
//  1. Compile and validate the CUE content, load tables
//  2. Create the world and expand the content roots
//  3. Execute setup steps, then flow steps
//  4. Read the trace back from the event log
//  5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	logger := world.NewDiscardLogger()

	prog, err := compile(scenario.Content)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := st.CreateRun(ctx, store.Run{ID: scenario.Name, Source: scenario.Content}); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	h := &Harness{
		store:    st,
		recorder: store.NewRecorder(st, scenario.Name, logger),
		frames:   actualize.NewCollector(0),
		logger:   logger,
	}

	opts := []world.Option{
		world.WithLogger(logger),
		world.WithNameGenerator(world.NewSequenceNameGenerator("sim")),
		world.WithTracer(h.recorder.Trace),
		world.WithSink(h.frames),
	}
	if scenario.Tables != "" {
		set, err := tables.LoadDir(scenario.Tables)
		if err != nil {
			return nil, fmt.Errorf("failed to load tables: %w", err)
		}
		opts = append(opts, world.WithEnvironment(set))
	}
	h.world, err = world.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create world: %w", err)
	}

	if err := h.expand(prog, scenario); err != nil {
		return nil, err
	}
	if err := h.recorder.Flush(ctx); err != nil {
		return nil, fmt.Errorf("failed to flush events: %w", err)
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	events, err := st.ReadEvents(ctx, scenario.Name, store.EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	for _, ev := range events {
		result.Trace = append(result.Trace, traceEventFromRecord(ev))
	}
	result.Frames = append(result.Frames, h.frames.Frames()...)
	if err := h.captureState(result); err != nil {
		return nil, fmt.Errorf("failed to capture state: %w", err)
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

func compile(dir string) (*compiler.Program, error) {
	v, err := compiler.LoadInstance(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load content: %w", err)
	}
	prog, errs := compiler.CompileProgram(v, compiler.FailFast)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to compile content: %w", errs[0])
	}
	if verrs := compiler.Validate(prog); len(verrs) > 0 {
		return nil, fmt.Errorf("invalid content: %w", verrs[0])
	}
	return prog, nil
}

// expand registers the program's dispatchers and expands the selected
// roots under the Game. File references resolve against the content
// directory.
func (h *Harness) expand(prog *compiler.Program, scenario *Scenario) error {
	if err := prog.Register(h.world); err != nil {
		return fmt.Errorf("failed to register dispatchers: %w", err)
	}

	roots := prog.Content
	if len(scenario.Roots) > 0 {
		roots = roots[:0:0]
		for _, name := range scenario.Roots {
			d, ok := prog.Root(name)
			if !ok {
				return fmt.Errorf("content root %q not found", name)
			}
			roots = append(roots, d)
		}
	}

	syncer := content.New(content.WithLoader(store.FileLoader), content.WithLogger(h.logger))
	origin := content.Origin{Source: scenario.Content, Dir: scenario.Content}
	for _, d := range roots {
		c, err := content.FromDescriptor(d)
		if err != nil {
			return fmt.Errorf("content root %s: %w", d.Name, err)
		}
		if _, err := syncer.Expand(h.world, c, world.GameAddress, origin); err != nil {
			return fmt.Errorf("failed to expand %s: %w", d.Name, err)
		}
	}
	return nil
}

// executeSetup runs all setup steps. Any failure aborts the scenario.
func (h *Harness) executeSetup(ctx context.Context, setup []Step) error {
	for i, step := range setup {
		if err := h.execute(step); err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Action(), err)
		}
		if err := h.recorder.Flush(ctx); err != nil {
			return fmt.Errorf("setup step %d: failed to flush events: %w", i, err)
		}
		h.logger.Info("setup step completed", "step", i, "action", step.Action())
	}
	return nil
}

// executeFlow runs flow steps and checks expect_error clauses. The first
// step that misbehaves is recorded in result and ends the flow, since the
// world may be partially applied.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		err := h.execute(step)
		if ferr := h.recorder.Flush(ctx); ferr != nil {
			return fmt.Errorf("flow step %d: failed to flush events: %w", i, ferr)
		}

		switch {
		case step.ExpectError == "" && err != nil:
			result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error: %v", i, step.Action(), err))
			return nil
		case step.ExpectError != "" && err == nil:
			result.AddError(fmt.Sprintf("flow[%d] %s: expected error containing %q, got success", i, step.Action(), step.ExpectError))
			return nil
		case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
			result.AddError(fmt.Sprintf("flow[%d] %s: expected error containing %q, got: %v", i, step.Action(), step.ExpectError, err))
			return nil
		}

		h.logger.Info("flow step completed",
			"step", i,
			"action", step.Action(),
			"tick", h.world.TickCount(),
		)
	}
	return nil
}

func (h *Harness) execute(step Step) error {
	subject, err := world.ParseAddress(step.Subject)
	if err != nil {
		return err
	}

	switch step.Action() {
	case ActionTick:
		for i := 0; i < step.Tick; i++ {
			if err := h.world.Tick(); err != nil {
				return err
			}
		}
		return nil

	case ActionPublish:
		data, err := value.FromAny(step.Data)
		if err != nil {
			return fmt.Errorf("data: %w", err)
		}
		return h.world.PublishAll(step.Publish, subject, data)

	case ActionSignal:
		var sig value.Value = value.String(step.Signal)
		if step.Data != nil {
			payload, err := value.FromAny(step.Data)
			if err != nil {
				return fmt.Errorf("data: %w", err)
			}
			sig = value.Obj(value.P("signal", sig), value.P("value", payload))
		}
		return h.world.Signal(subject, sig)

	case ActionSet:
		keys := make([]string, 0, len(step.Set))
		for k := range step.Set {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v, err := value.FromAny(step.Set[k])
			if err != nil {
				return fmt.Errorf("set %s: %w", k, err)
			}
			if err := h.world.Set(subject, k, v); err != nil {
				return err
			}
		}
		return nil

	case ActionDestroy:
		addr, err := world.ParseAddress(step.Destroy)
		if err != nil {
			return err
		}
		return h.world.Destroy(addr)

	default:
		return fmt.Errorf("step has no action")
	}
}

// captureState records every live simulant's properties, intrinsics
// included.
func (h *Harness) captureState(result *Result) error {
	return h.world.Walk(world.GameAddress, func(s world.Simulant) error {
		defs, err := h.world.Properties(s.Address)
		if err != nil {
			return err
		}
		props := make(value.Object, len(defs))
		for _, def := range defs {
			if v, ok := h.world.TryGet(s.Address, def.Name); ok {
				props[def.Name] = value.Clone(v)
			}
		}
		result.State[string(s.Address)] = props
		return nil
	})
}
