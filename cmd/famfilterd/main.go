package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/haukened/famfilter/internal/policy/common/clock"
	"github.com/haukened/famfilter/internal/policy/common/log"
	"github.com/haukened/famfilter/internal/policy/config"
	"github.com/haukened/famfilter/internal/policy/domain"
	"github.com/haukened/famfilter/internal/policy/repos/activitylog"
	"github.com/haukened/famfilter/internal/policy/repos/categories"
	"github.com/haukened/famfilter/internal/policy/repos/categories/bloom"
	"github.com/haukened/famfilter/internal/policy/repos/categories/bolt"
	"github.com/haukened/famfilter/internal/policy/repos/categories/lru"
	"github.com/haukened/famfilter/internal/policy/repos/policyfile"
	"github.com/haukened/famfilter/internal/policy/repos/rulestore"
	"github.com/haukened/famfilter/internal/policy/services/evaluator"
	"github.com/haukened/famfilter/internal/policy/services/manager"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "famfilterd"
)

// Application holds all the components of the filtering daemon
type Application struct {
	config     *config.AppConfig
	catalog    domain.CategoryCatalog
	clock      clock.Clock
	categories categories.Repository // nil when no category directory is configured
	checker    *evaluator.Checker
	manager    *manager.Manager
	recorder   *activitylog.Recorder
	rules      *rulestore.Store
	closers    []io.Closer
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.Log.Level, log.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":        version,
		"env":            cfg.Env,
		"log_level":      cfg.Log.Level,
		"policy_dir":     cfg.Policy.Directory,
		"timezone":       cfg.Policy.Timezone,
		"categories_dir": cfg.Categories.Directory,
		"activity_db":    cfg.Activity.DB,
	}, "Starting "+appName)

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGHUP {
				if err := app.ReloadCategories(); err != nil {
					log.Error(map[string]any{"error": err}, "Category reload failed")
				}
				continue
			}
			log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
			cancel()
			return
		}
	}()

	runErr := app.Run(ctx, os.Stdin, os.Stdout)
	if err := app.Close(); err != nil {
		log.Error(map[string]any{"error": err}, "Error closing stores")
	}
	if runErr != nil {
		log.Fatal(map[string]any{"error": runErr}, "Daemon failed")
	}
	log.Info(nil, appName+" stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid policy timezone: %w", err)
	}
	// time restrictions are read on the household's wall clock
	clk := clock.ZonedClock{Base: clock.RealClock{}, Location: loc}

	logger := log.GetLogger()
	catalog := domain.NewCategoryCatalog(domain.DefaultCategories())

	app := &Application{
		config:  cfg,
		catalog: catalog,
		clock:   clk,
	}
	if err := app.buildRepositories(logger); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to build repositories: %w", err)
	}

	var categorizer evaluator.Categorizer = &categories.NoopCategorizer{}
	if app.categories != nil {
		categorizer = app.categories
	}
	app.checker = evaluator.NewChecker(evaluator.CheckerOptions{
		Catalog:     catalog,
		Categorizer: categorizer,
		Clock:       clk,
		Logger:      logger,
		Rules:       app.rules,
	})

	app.manager, err = manager.New(manager.Options{
		Catalog:  catalog,
		Clock:    clk,
		Logger:   logger,
		Recorder: app.recorder,
		Store:    app.rules,
	})
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to build policy manager: %w", err)
	}
	return app, nil
}

// buildRepositories opens the category index, loads policy files and opens
// the activity log. Stores opened before a failure are left in app.closers.
func (app *Application) buildRepositories(logger log.Logger) error {
	cfg := app.config

	if cfg.Categories.Directory == "" {
		log.Info(map[string]any{"disabled": true}, "Category index disabled")
	} else {
		store, err := bolt.New(cfg.Categories.DB)
		if err != nil {
			return fmt.Errorf("failed to open category store: %w", err)
		}
		app.closers = append(app.closers, store)

		cache, err := lru.New(cfg.Categories.CacheSize)
		if err != nil {
			return fmt.Errorf("failed to create category cache: %w", err)
		}
		app.categories = categories.NewRepository(categories.RepositoryOptions{
			Store:   store,
			Cache:   cache,
			Factory: bloom.NewFactory(),
			FPRate:  cfg.Categories.FPRate,
			Logger:  logger,
		})
		if err := app.ReloadCategories(); err != nil {
			return err
		}
	}

	now := app.clock.Now()
	docs, err := policyfile.LoadDirectory(cfg.Policy.Directory, app.catalog, now)
	if err != nil {
		return fmt.Errorf("failed to load policy directory: %w", err)
	}
	app.rules = rulestore.New()
	if err := policyfile.Apply(app.rules, docs); err != nil {
		// a bad entry only drops itself; the rest of the policy still applies
		for _, e := range multierr.Errors(err) {
			log.Warn(map[string]any{"error": e}, "Skipped policy entry")
		}
	}
	log.Info(map[string]any{
		"policy_dir": cfg.Policy.Directory,
		"files":      len(docs),
		"rules":      len(app.rules.Rules()),
	}, "Rule store initialized")

	recorder, err := activitylog.Open(cfg.Activity.DB, activitylog.Options{Clock: app.clock, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to open activity log: %w", err)
	}
	app.recorder = recorder
	app.closers = append(app.closers, recorder)
	log.Info(map[string]any{
		"path":    cfg.Activity.DB,
		"entries": recorder.Count(),
	}, "Activity log opened")
	return nil
}

// ReloadCategories re-reads the category lists and swaps them into the index.
func (app *Application) ReloadCategories() error {
	if app.categories == nil {
		return nil
	}
	now := app.clock.Now()
	rules, err := categories.LoadDir(app.config.Categories.Directory, app.catalog, log.GetLogger(), now)
	if err != nil {
		return fmt.Errorf("failed to load category lists: %w", err)
	}
	if err := app.categories.UpdateAll(rules, uint64(now.Unix()), now.Unix()); err != nil {
		return fmt.Errorf("failed to rebuild category index: %w", err)
	}
	st := app.categories.Stats()
	log.Info(map[string]any{
		"rules":       len(rules),
		"exact_keys":  st.Store.ExactKeys,
		"suffix_keys": st.Store.SuffixKeys,
	}, "Category index loaded")
	return nil
}

// Run serves requests from in until EOF or until ctx is cancelled
func (app *Application) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	log.Info(map[string]any{"rules": len(app.rules.Rules())}, "Ready for requests")
	start := time.Now()
	n, err := app.Serve(ctx, in, out)
	log.Info(map[string]any{
		"requests": n,
		"uptime":   time.Since(start).String(),
	}, "Request loop finished")
	return err
}

// Close releases every store the application opened.
func (app *Application) Close() error {
	var errs error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, app.closers[i].Close())
	}
	app.closers = nil
	return errs
}
