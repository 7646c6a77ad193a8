package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/guard"
	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/memory/episodic"
	"github.com/felixgeelhaar/recall/internal/memory/semantic"
	"github.com/felixgeelhaar/recall/internal/memory/shortterm"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/runtime"
	"github.com/felixgeelhaar/recall/internal/store"
)

// app is the wired memory stack for one command invocation.
type app struct {
	cfg   *config.Config
	obs   *observe.Observer
	repo  *store.Fallback
	guard *guard.Guard
	ctrl  *runtime.Controller
}

func (o *options) path() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.DefaultPath()
}

func (o *options) load() (*config.Config, error) {
	cfg, err := config.LoadWithDefaults(o.path())
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
	}
	if o.inMemory {
		cfg.Database.InMemory = true
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	if o.jsonLogs {
		cfg.Logging.Format = "json"
	}
	return cfg, nil
}

// open loads the configuration and wires storage, stores and controller.
// Logs go to stderr so command output stays parseable.
func (o *options) open() (*app, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}

	obs := observe.FromSettings(os.Stderr, cfg.Logging.Format, cfg.Logging.Level)
	repo := store.Open(cfg.Database, obs)

	st := shortterm.New(repo, obs, cfg.Memory)
	stores := memory.Stores{
		ShortTerm: st,
		Episodic:  episodic.New(repo, st, obs, cfg.Memory),
		Semantic:  semantic.New(repo, obs),
	}
	g := guard.New(cfg.Guard)

	return &app{
		cfg:   cfg,
		obs:   obs,
		repo:  repo,
		guard: g,
		ctrl:  runtime.New(stores, obs, cfg.Memory, runtime.WithGuard(g)),
	}, nil
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		a.obs.Log().Warn().Err(err).Msg("failed to close storage")
	}
	_ = a.obs.Close()
}

func (a *app) mem() memory.Stores { return a.ctrl.Memory() }

// responder builds the configured provider. Non-empty name and model
// override the configured ones.
func (a *app) responder(name, model string) (runtime.ResponseFunc, error) {
	pc := a.cfg.Provider
	if name != "" {
		pc.Name = name
	}
	if model != "" {
		pc.Model = model
	}
	p, err := provider.New(pc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider: %w", err)
	}
	a.obs.Log().Info().Str("provider", p.Name()).Msg("responder ready")
	return provider.Responder(p), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseValue reads a command-line value as JSON, falling back to the raw
// string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}
