package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/canopyscan/canopy/pkg/cache"
	"github.com/canopyscan/canopy/pkg/config"
	"github.com/canopyscan/canopy/pkg/export"
	"github.com/canopyscan/canopy/pkg/npm"
	"github.com/canopyscan/canopy/pkg/runner"
)

// resolveOpts holds the command-line flags for the resolve command.
type resolveOpts struct {
	strategy      string   // tree acquisition strategy: auto, fs, tool
	excludeScopes []string // scopes to skip entirely
	workers       int      // bounded metadata fetch concurrency
	refresh       bool     // bypass the persistent metadata cache
	noInfo        bool     // skip remote metadata entirely
	output        string   // output file path (stdout if empty)
	watch         bool     // re-resolve on manifest changes
	interactive   bool     // pick workspace projects interactively
	mongo         bool     // export to MongoDB (requires mongo_uri in config)
}

func newResolveCmd() *cobra.Command {
	opts := resolveOpts{strategy: string(npm.StrategyAuto)}

	cmd := &cobra.Command{
		Use:   "resolve [dir]",
		Short: "Resolve the dependency graph of a project or workspace",
		Long: `Resolve the full, de-duplicated dependency graph of a JavaScript or
TypeScript project. The project directory defaults to the current one.

A yarn.lock selects the tool-tree strategy (parsing 'yarn list --json');
otherwise the installed node_modules layout is walked directly. Use
--strategy to force either.

Examples:
  canopy resolve                          # current directory
  canopy resolve ./frontend -o graph.json
  canopy resolve --exclude-scope devDependencies
  canopy resolve --watch                  # re-resolve on manifest changes`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if opts.watch {
				return watchAndResolve(cmd.Context(), dir, &opts)
			}
			return runResolve(cmd.Context(), dir, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.strategy, "strategy", opts.strategy, "tree acquisition strategy: auto, fs, tool")
	cmd.Flags().StringSliceVar(&opts.excludeScopes, "exclude-scope", nil, "dependency scopes to skip (dependencies, devDependencies)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "concurrent metadata fetches (default from config)")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass the metadata cache")
	cmd.Flags().BoolVar(&opts.noInfo, "no-info", false, "skip remote metadata lookup")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (stdout if empty)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "re-resolve whenever package.json or yarn.lock changes")
	cmd.Flags().BoolVar(&opts.interactive, "interactive", false, "select workspace projects interactively")
	cmd.Flags().BoolVar(&opts.mongo, "mongo", false, "also export the graph to MongoDB")

	return cmd
}

func runResolve(ctx context.Context, dir string, opts *resolveOpts) error {
	logger := loggerFromContext(ctx)
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	metaCache, err := openMetadataCache(cfg)
	if err != nil {
		logger.Warn("metadata cache disabled", "err", err)
		metaCache = cache.NewNullCache()
	}
	defer metaCache.Close()

	run := runner.New()
	resolverOpts := npm.Options{
		Strategy:      npm.Strategy(opts.strategy),
		ExcludeScopes: excludedScopes(cfg, opts),
		Workers:       pickWorkers(cfg, opts),
		Refresh:       opts.refresh,
		Cache:         metaCache,
		CacheTTL:      cfg.TTL(),
		FetchInfo:     !opts.noInfo,
		Logger:        logger,
	}

	if opts.interactive {
		selected, err := pickProjects(ctx, run, logger, dir)
		if err != nil {
			return err
		}
		resolverOpts.OnlyProjects = selected
	}

	prog := newProgress(logger)
	spin := newSpinnerWithContext(ctx, "Resolving dependencies...")
	spin.Start()
	g, err := npm.NewResolver(run, resolverOpts).Resolve(ctx, dir)
	spin.Stop()
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Resolved %d packages across %d projects", len(g.Packages), len(g.Projects)))

	if opts.mongo {
		if cfg.MongoURI == "" {
			return fmt.Errorf("--mongo requires mongo_uri in %s", config.FileName)
		}
		store, err := export.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return err
		}
		defer store.Close(ctx)
		if err := store.Store(ctx, uuid.NewString(), g); err != nil {
			return err
		}
		printSuccess("Exported graph to MongoDB")
	}

	return writeOutput(opts.output, func(w io.Writer) error {
		return export.WriteJSON(g, w)
	})
}

// watchAndResolve resolves once, then re-resolves whenever the project's
// manifest or lockfile changes. It returns when the context is done.
func watchAndResolve(ctx context.Context, dir string, opts *resolveOpts) error {
	logger := loggerFromContext(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	if err := runResolve(ctx, dir, opts); err != nil {
		logger.Error("resolution failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if name != "package.json" && name != "yarn.lock" {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			logger.Info("manifest changed, re-resolving", "file", name)
			if err := runResolve(ctx, dir, opts); err != nil {
				logger.Error("resolution failed", "err", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "err", err)
		}
	}
}

func excludedScopes(cfg config.Config, opts *resolveOpts) []npm.Scope {
	names := opts.excludeScopes
	if len(names) == 0 {
		names = cfg.ExcludeScopes
	}
	scopes := make([]npm.Scope, 0, len(names))
	for _, n := range names {
		scopes = append(scopes, npm.Scope(n))
	}
	return scopes
}

func pickWorkers(cfg config.Config, opts *resolveOpts) int {
	if opts.workers > 0 {
		return opts.workers
	}
	return cfg.Workers
}

// openMetadataCache selects the persistent cache backend: Redis when
// configured, the default file cache otherwise.
func openMetadataCache(cfg config.Config) (cache.Cache, error) {
	if cfg.RedisURL != "" {
		return cache.NewRedisCache(cfg.RedisURL, "canopy:")
	}
	dir := cfg.CacheDir
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "canopy")
	}
	return cache.NewFileCache(dir, cfg.CacheBytes())
}

func writeOutput(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := write(f); err != nil {
		return err
	}
	printSuccess("Wrote %s", path)
	return nil
}
