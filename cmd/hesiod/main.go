package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ritzau/hesiod/pkg/config"
	"github.com/ritzau/hesiod/pkg/cycles"
	"github.com/ritzau/hesiod/pkg/legacy"
	"github.com/ritzau/hesiod/pkg/logging"
	"github.com/ritzau/hesiod/pkg/nodes"
	"github.com/ritzau/hesiod/pkg/output"
	"github.com/ritzau/hesiod/pkg/project"
	"github.com/ritzau/hesiod/pkg/pubsub"
	"github.com/ritzau/hesiod/pkg/registry"
	"github.com/ritzau/hesiod/pkg/session"
	"github.com/ritzau/hesiod/pkg/web"
	"github.com/spf13/pflag"
)

func main() {
	f := config.NewFlagSet("hesiod")
	if err := f.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	level, _ := cfg.LogLevel()
	logging.Configure(os.Stderr, level, cfg.JSONLogs())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, f); err != nil {
		logging.Error("hesiod failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, f *pflag.FlagSet) error {
	reg := nodes.StandardRegistry()

	if listTypes, _ := f.GetBool("list-types"); listTypes {
		output.PrintTypes(os.Stdout, reg)
		return nil
	}

	load, path, err := loaderFor(cfg, f)
	if err != nil {
		return err
	}
	p, err := load()
	if err != nil {
		return err
	}

	if validate, _ := f.GetBool("validate"); validate {
		return validateProject(p)
	}

	pub := pubsub.NewSSEPublisher()
	defer pub.Close()

	state := registry.NewState()
	state.Store(nodes.AssetRootKey, resolvePath(cfg, cfg.Paths.Assets))

	sess := session.New(p, reg,
		session.WithPublisher(pub),
		session.WithState(state),
		session.WithSettings(cfg.Settings()),
		session.WithWorkers(cfg.Parallelism()),
	)
	sess.Announce()

	var targets []string
	if len(cfg.Targets) > 0 {
		targets = cfg.Targets
	}

	w := &watchLoop{path: path, load: load, session: sess, targets: targets, force: cfg.Force}

	if cfg.WebMode {
		if cfg.Watch {
			go func() {
				if err := w.run(ctx); err != nil {
					logging.Error("watch stopped", "error", err)
				}
			}()
		}
		return web.NewServer(sess, pub).Start(ctx, cfg.Port)
	}

	w.report = func(name string, res *session.Result) {
		output.PrintEvaluationReport(os.Stdout, name, res.Results, res.Stats)
	}
	if err := w.evaluate(ctx, p.Name); err != nil {
		if !cfg.Watch {
			return err
		}
		logging.Error("evaluation failed", "error", err)
	}
	if cfg.Watch {
		return w.run(ctx)
	}
	return nil
}

// loaderFor resolves the project source. A legacy import takes precedence
// over --project; relative paths are taken from paths.root.
func loaderFor(cfg *config.Config, f *pflag.FlagSet) (func() (*project.Project, error), string, error) {
	if legacyPath, _ := f.GetString("import-legacy"); legacyPath != "" {
		path := resolvePath(cfg, legacyPath)
		return func() (*project.Project, error) {
			report, err := legacy.Import(path, nil)
			if err != nil {
				return nil, err
			}
			if len(report.Unsupported) > 0 {
				logging.Warn("legacy project uses unsupported node types", "nodes", report.Unsupported)
			}
			return report.Project, nil
		}, path, nil
	}

	if cfg.Project == "" {
		return nil, "", errors.New("no project given: use --project or --import-legacy")
	}
	path := resolvePath(cfg, cfg.Project)
	return func() (*project.Project, error) { return project.Load(path) }, path, nil
}

func resolvePath(cfg *config.Config, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cfg.Paths.Root, path)
}

func validateProject(p *project.Project) error {
	found := cycles.FindCycles(p.Graph)
	output.PrintCycles(os.Stdout, found)
	if len(found) > 0 {
		return fmt.Errorf("project %q has %d cycle(s)", p.Name, len(found))
	}
	return nil
}
