package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/ritzau/hesiod/pkg/logging"
	"github.com/ritzau/hesiod/pkg/runtime"
	"github.com/spf13/pflag"
)

// DefaultFile is read from the working directory when --config is not given
const DefaultFile = "hesiod.toml"

// EnvPrefix marks environment variables that override configuration keys,
// e.g. HESIOD_PORT=9090 or HESIOD_PATHS_ASSETS=/srv/assets
const EnvPrefix = "HESIOD_"

// MaxWorkers bounds the parallel evaluation fan-out
const MaxWorkers = 64

// Paths are the directories a project resolves relative files against
type Paths struct {
	Root   string `koanf:"root"`
	Assets string `koanf:"assets"`
}

// Config holds all configuration for the application
type Config struct {
	Project    string         `koanf:"project"`
	Targets    []string       `koanf:"targets"`
	Force      bool           `koanf:"force"`
	WebMode    bool           `koanf:"web"`
	Port       int            `koanf:"port"`
	Watch      bool           `koanf:"watch"`
	Memoize    bool           `koanf:"memoize"`
	Workers    int            `koanf:"workers"`
	Verbosity  string         `koanf:"verbosity"`
	VerboseCnt int            `koanf:"verbose"`
	LogFormat  string         `koanf:"logformat"`
	Paths      Paths          `koanf:"paths"`
	Metadata   map[string]any `koanf:"metadata"`
}

// flagKeys maps flag names that differ from their configuration key. An
// empty key keeps the flag out of the configuration.
var flagKeys = map[string]string{
	"assets-dir":    "paths.assets",
	"root":          "paths.root",
	"log-format":    "logformat",
	"config":        "",
	"list-types":    "",
	"validate":      "",
	"import-legacy": "",
}

// NewFlagSet declares every command-line flag. Flags that are not
// configuration keys (--config, --list-types, --validate, --import-legacy)
// are read directly by the caller.
func NewFlagSet(name string) *pflag.FlagSet {
	f := pflag.NewFlagSet(name, pflag.ContinueOnError)
	f.String("config", "", "Configuration file (.toml or .json), default "+DefaultFile)
	f.StringP("project", "p", "", "Project file to load")
	f.String("import-legacy", "", "Import a legacy .hsd project instead of --project")
	f.StringSliceP("targets", "t", nil, "Nodes to evaluate (default: every node)")
	f.BoolP("force", "f", false, "Ignore cached results")
	f.Bool("memoize", true, "Reuse cached node results")
	f.IntP("workers", "j", 1, "Nodes evaluated concurrently (0 = one per CPU)")
	f.Bool("web", false, "Serve the HTTP API instead of printing a report")
	f.Int("port", 8080, "Port for web server (only used with --web)")
	f.Bool("watch", false, "Re-evaluate whenever the project file changes")
	f.Bool("list-types", false, "Print the registered node types and exit")
	f.Bool("validate", false, "Check the project for cycles and exit")
	f.String("verbosity", "", "Log level: trace, debug, info, warn, error")
	f.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	f.String("log-format", "compact", "Log format: compact or json")
	f.String("root", ".", "Project root directory")
	f.String("assets-dir", "assets", "Directory relative image paths are resolved against")
	return f
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]any{
		"project":   "",
		"targets":   []string{},
		"force":     false,
		"web":       false,
		"port":      8080,
		"watch":     false,
		"memoize":   true,
		"workers":   1,
		"verbosity": "",
		"verbose":   0,
		"logformat": "compact",
		"paths": map[string]any{
			"root":   ".",
			"assets": "assets",
		},
		"metadata": map[string]any{},
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file. The default one is optional, an explicit one is not.
	path, explicit := DefaultFile, false
	if f != nil {
		if p, err := f.GetString("config"); err == nil && p != "" {
			path, explicit = p, true
		}
	}
	if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	} else {
		logging.Debug("loaded config file", "path", path)
	}

	// 3. Environment variables
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.ProviderWithFlag(f, ".", k, flagValue(f)), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func parserFor(path string) koanf.Parser {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return json.Parser()
	}
	return toml.Parser()
}

// envValue turns HESIOD_PATHS_ASSETS into paths.assets and splits list values
func envValue(key, val string) (string, any) {
	key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "_", ".")
	if key == "targets" {
		var targets []string
		for _, t := range strings.Split(val, ",") {
			if t = strings.TrimSpace(t); t != "" {
				targets = append(targets, t)
			}
		}
		return key, targets
	}
	return key, val
}

func flagValue(set *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, renamed := flagKeys[f.Name]
		if !renamed {
			key = f.Name
		}
		return key, posflag.FlagVal(set, f)
	}
}

// Validate rejects values the runtime cannot honour
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 0 || c.Workers > MaxWorkers {
		errs = append(errs, fmt.Errorf("workers must be within 0..%d, got %d", MaxWorkers, c.Workers))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "compact", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Settings is the part of the configuration the runtime reads on every evaluation
func (c *Config) Settings() runtime.Settings {
	return runtime.Settings{Memoization: c.Memoize}
}

// Parallelism resolves workers = 0 to the number of CPUs
func (c *Config) Parallelism() int {
	if c.Workers == 0 {
		return goruntime.NumCPU()
	}
	return c.Workers
}

func (c *Config) LogLevel() (slog.Level, error) {
	return logging.LevelFromVerbosity(c.Verbosity, c.VerboseCnt)
}

func (c *Config) JSONLogs() bool {
	return strings.EqualFold(c.LogFormat, "json")
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]any
}

func makeMapProvider(m map[string]any) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]any, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
