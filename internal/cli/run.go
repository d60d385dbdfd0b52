package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/simkernel/internal/actualize"
	"github.com/roach88/simkernel/internal/compiler"
	"github.com/roach88/simkernel/internal/config"
	"github.com/roach88/simkernel/internal/content"
	"github.com/roach88/simkernel/internal/store"
	"github.com/roach88/simkernel/internal/tables"
	"github.com/roach88/simkernel/internal/world"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Ticks    int
	Database string
	Roots    []string
	Save     string // snapshot key for the final Game subtree
	Out      string // descriptor file for the final Game subtree
	Restore  string // snapshot key or descriptor file to start from
	View     string // websocket viewer listen address
	Interval time.Duration

	// RunID names the run in the event log. If empty, a UUIDv7 is used.
	RunID string
}

// RunResult summarizes a finished run.
type RunResult struct {
	RunID       string `json:"run_id"`
	Ticks       int64  `json:"ticks"`
	Simulants   int    `json:"simulants"`
	Events      int    `json:"events"`
	Submissions int    `json:"submissions"`
	Snapshot    string `json:"snapshot,omitempty"` // digest of the saved subtree
	ViewAddr    string `json:"view_addr,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <content-dir>",
		Short: "Expand content and tick the world",
		Long: `Compile the content in a directory, expand its roots under the Game
and run the world for a number of ticks.

Lookup tables are read from the content directory's "tables"
subdirectory unless SIMK_TABLES_DIR says otherwise. Settings come from
SIMK_* environment variables; flags override them.

With --db every dispatched event is recorded to a SQLite event log that
"simk trace" reads. --save stores the final Game subtree in that log
under a key, --out writes it to a descriptor file (.simz, .json or
.yaml), and --restore starts from either instead of expanding content
roots.

With --view the world's draw submissions are streamed to websocket
viewers at ws://<addr>/view, and the command keeps serving after the
last tick until interrupted.

Example:
  simk run ./content --ticks 60
  simk run ./content --ticks 10 --db ./simk.db --save level-1
  simk run ./content --restore level-1 --db ./simk.db --ticks 5
  simk run ./content --ticks 600 --interval 16ms --view :8080`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorld(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Ticks, "ticks", 0, "number of ticks to run (default SIMK_TICKS)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log (default SIMK_DB_PATH)")
	cmd.Flags().StringSliceVar(&opts.Roots, "root", nil, "content roots to expand (default all)")
	cmd.Flags().StringVar(&opts.Save, "save", "", "snapshot key to save the final Game subtree under (requires --db)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "write the final Game subtree to a .simz, .json or .yaml file")
	cmd.Flags().StringVar(&opts.Restore, "restore", "", "snapshot key or descriptor file to restore instead of expanding content")
	cmd.Flags().StringVar(&opts.View, "view", "", "serve websocket viewers on this address (default SIMK_VIEW_ADDR)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "wall-clock pause between ticks")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run ID for the event log (default a new UUIDv7)")

	return cmd
}

// resolveConfig layers flags that were set over the environment.
func resolveConfig(opts *RunOptions, cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("ticks") {
		cfg.Ticks = opts.Ticks
	}
	if flags.Changed("db") {
		cfg.DBPath = opts.Database
	}
	if flags.Changed("view") {
		cfg.ViewAddr = opts.View
	}
	if opts.Verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	return cfg, cfg.Validate()
}

func runWorld(opts *RunOptions, contentDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger := cfg.Logger(cmd.ErrOrStderr())

	if opts.Save != "" && cfg.DBPath == "" {
		return NewExitError(ExitCommandError, "--save requires --db")
	}

	logger.Info("compiling content", "dir", contentDir)
	prog, err := compileContent(contentDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile content", err)
	}
	logger.Info("content compiled", "dispatchers", len(prog.Dispatchers), "roots", len(prog.Content))

	tablesDir := cfg.TablesDir
	if tablesDir == "" {
		tablesDir = filepath.Join(contentDir, "tables")
	}
	set, err := tables.LoadDir(tablesDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load tables", err)
	}
	logger.Debug("tables loaded", "dir", tablesDir, "tables", set.Names())

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st *store.Store
	if cfg.DBPath != "" {
		logger.Info("opening event log", "path", cfg.DBPath)
		st, err = store.Open(cfg.DBPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	restored, clock, err := loadRestore(ctx, opts.Restore, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load restore source", err)
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.Must(uuid.NewV7()).String()
	}

	frames := actualize.NewCollector(1)
	sinks := actualize.Fanout{frames}
	var hub *actualize.Hub
	if cfg.ViewAddr != "" {
		hub = actualize.NewHub(actualize.WithHubLogger(logger))
		sinks = append(sinks, hub)
	}

	worldOpts := append(cfg.WorldOptions(),
		world.WithLogger(logger),
		world.WithEnvironment(set),
		world.WithSink(sinks),
		world.WithClock(clock),
	)
	var rec *store.Recorder
	if st != nil {
		rec = store.NewRecorder(st, runID, logger)
		worldOpts = append(worldOpts, world.WithTracer(rec.Trace))
	}
	w, err := world.New(worldOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create world", err)
	}
	if st != nil {
		if err := st.CreateRun(ctx, store.Run{ID: runID, Source: contentDir, Seq: clock.Current()}); err != nil {
			return WrapExitError(ExitCommandError, "failed to create run", err)
		}
	}

	if err := prog.Register(w); err != nil {
		return WrapExitError(ExitCommandError, "failed to register dispatchers", err)
	}
	if restored != nil {
		if _, err := content.ReadSubtree(w, *restored, world.GameAddress); err != nil {
			return WrapExitError(ExitCommandError, "failed to restore subtree", err)
		}
	} else if err := expandRoots(w, prog, opts.Roots, contentDir, logger); err != nil {
		return WrapExitError(ExitCommandError, "failed to expand content", err)
	}
	if err := flushRecorder(ctx, rec); err != nil {
		return WrapExitError(ExitFailure, "failed to record events", err)
	}

	result := RunResult{RunID: runID}
	var server *http.Server
	if hub != nil {
		ln, err := net.Listen("tcp", cfg.ViewAddr)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to listen for viewers", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/view", hub.Handler())
		server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("viewer server failed", "error", err)
			}
		}()
		result.ViewAddr = ln.Addr().String()
		formatter.VerboseLog("Viewers: ws://%s/view", result.ViewAddr)
	}

	logger.Info("world running", "run", runID, "ticks", cfg.Ticks)
	if err := tickWorld(ctx, w, rec, cfg.Ticks, opts.Interval, logger); err != nil {
		return WrapExitError(ExitFailure, "world error", err)
	}

	if opts.Save != "" || opts.Out != "" {
		d, err := content.WriteSubtree(w, world.GameAddress)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to capture subtree", err)
		}
		if opts.Save != "" {
			result.Snapshot, err = st.SaveSnapshot(ctx, store.Snapshot{
				Key:        opts.Save,
				RunID:      runID,
				Tick:       w.TickCount(),
				Seq:        w.Clock().Current(),
				Descriptor: d,
			})
			if err != nil {
				return WrapExitError(ExitFailure, "failed to save snapshot", err)
			}
			logger.Info("snapshot saved", "key", opts.Save, "digest", result.Snapshot)
		}
		if opts.Out != "" {
			if err := store.WriteDescriptorFile(opts.Out, d); err != nil {
				return WrapExitError(ExitFailure, "failed to write subtree file", err)
			}
		}
	}

	result.Ticks = w.TickCount()
	result.Simulants = w.Count()
	if rec != nil {
		result.Events = rec.Written()
	}
	if last, ok := frames.Last(); ok {
		result.Submissions = len(last.Submissions)
	}

	if err := outputRunResult(formatter, result, opts); err != nil {
		return err
	}

	if server != nil {
		<-ctx.Done()
		logger.Info("shutting down viewers")
		_ = hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("viewer shutdown failed", "error", err)
		}
	}
	return nil
}

// compileContent loads, compiles and validates content from a directory.
func compileContent(dir string) (*compiler.Program, error) {
	loadResult, loadErrors := LoadContent(dir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	if verrs := compiler.Validate(loadResult.Program); len(verrs) > 0 {
		return nil, verrs[0]
	}
	return loadResult.Program, nil
}

// loadRestore resolves --restore. A source with a descriptor file
// extension is read from disk with a fresh clock. Anything else is a
// snapshot key in the event log, and the clock resumes past the
// snapshot's seq.
func loadRestore(ctx context.Context, src string, st *store.Store) (*content.Descriptor, *world.Clock, error) {
	switch {
	case src == "":
		return nil, world.NewClock(), nil
	case isDescriptorFile(src):
		d, err := store.LoadDescriptorFile(src)
		if err != nil {
			return nil, nil, err
		}
		return &d, world.NewClock(), nil
	case st == nil:
		return nil, nil, fmt.Errorf("restoring snapshot %q requires --db", src)
	default:
		snap, err := st.LoadSnapshot(ctx, src)
		if err != nil {
			return nil, nil, err
		}
		return &snap.Descriptor, world.NewClockAt(snap.Seq), nil
	}
}

func isDescriptorFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".simz", ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// expandRoots expands the selected content roots (all when names is
// empty) under the Game.
func expandRoots(w *world.World, prog *compiler.Program, names []string, dir string, logger *slog.Logger) error {
	roots := prog.Content
	if len(names) > 0 {
		roots = nil
		for _, name := range names {
			d, ok := prog.Root(name)
			if !ok {
				return fmt.Errorf("content root %q not found", name)
			}
			roots = append(roots, d)
		}
	}

	syncer := content.New(content.WithLoader(store.FileLoader), content.WithLogger(logger))
	origin := content.Origin{Source: dir, Dir: dir}
	for _, d := range roots {
		c, err := content.FromDescriptor(d)
		if err != nil {
			return fmt.Errorf("content root %s: %w", d.Name, err)
		}
		s, err := syncer.Expand(w, c, world.GameAddress, origin)
		if err != nil {
			return fmt.Errorf("expand %s: %w", d.Name, err)
		}
		logger.Debug("content expanded", "root", d.Name, "address", s.Address.String())
	}
	return nil
}

// tickWorld runs n ticks, recording after each. Cancellation stops
// between ticks without error.
func tickWorld(ctx context.Context, w *world.World, rec *store.Recorder, n int, interval time.Duration, logger *slog.Logger) error {
	var pace <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		pace = t.C
	}
	for i := 0; i < n; i++ {
		if pace != nil && i > 0 {
			select {
			case <-ctx.Done():
			case <-pace:
			}
		}
		if ctx.Err() != nil {
			logger.Info("run interrupted", "tick", w.TickCount())
			return nil
		}
		if err := w.Tick(); err != nil {
			return fmt.Errorf("tick %d: %w", w.TickCount(), err)
		}
		if err := flushRecorder(ctx, rec); err != nil {
			return fmt.Errorf("tick %d: %w", w.TickCount(), err)
		}
	}
	return nil
}

func flushRecorder(ctx context.Context, rec *store.Recorder) error {
	if rec == nil {
		return nil
	}
	// The log is written even when the run is being interrupted.
	return rec.Flush(context.WithoutCancel(ctx))
}

// outputRunResult outputs the run summary.
func outputRunResult(formatter *OutputFormatter, result RunResult, opts *RunOptions) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Ran %d tick(s): %d simulant(s), %d submission(s) in the last frame\n",
		result.Ticks, result.Simulants, result.Submissions)
	if result.Events > 0 {
		fmt.Fprintf(formatter.Writer, "  Recorded %d event(s) as run %s\n", result.Events, result.RunID)
	}
	if result.Snapshot != "" {
		fmt.Fprintf(formatter.Writer, "  Saved snapshot %q (%s)\n", opts.Save, result.Snapshot)
	}
	if opts.Out != "" {
		fmt.Fprintf(formatter.Writer, "  Wrote subtree to %s\n", opts.Out)
	}
	if result.ViewAddr != "" {
		fmt.Fprintf(formatter.Writer, "  Serving viewers at ws://%s/view (Ctrl-C to stop)\n", result.ViewAddr)
	}
	return nil
}
