// Package app wires configuration, dataset source, pipeline, executor and
// transport into one runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"hermes/internal/config"
	"hermes/internal/dataset"
	"hermes/internal/httpapi"
	"hermes/internal/llm"
	"hermes/internal/pipeline"
	"hermes/internal/service"
	"hermes/internal/store"
	"hermes/queue"
)

const shutdownTimeout = 10 * time.Second

// App wires the components together.
type App struct {
	cfg     config.Config
	logger  zerolog.Logger
	source  dataset.Source
	store   *store.Store
	queue   *queue.Queue
	service *service.Service
	mux     *http.ServeMux
}

// New opens the run store and the dataset source. Call Run to start serving
// or Service to answer queries directly.
func New(cfg config.Config, logger zerolog.Logger) (*App, error) {
	st, err := store.Open(cfg.RunsDBPath)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	source, err := dataset.Open(cfg.DatasetPath, cfg.DatasetTable, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open dataset: %w", err)
	}

	q := queue.New(cfg.QueueSize, cfg.WorkerCount, time.Duration(cfg.QueryTimeoutSec)*time.Second, logger)
	a := &App{cfg: cfg, logger: logger, source: source, store: st, queue: q, mux: http.NewServeMux()}
	a.service = service.New(a, pipeline.New(Capability(cfg, logger), logger), q, st, time.Duration(cfg.QueryTimeoutSec)*time.Second, logger)
	httpapi.NewRouter(cfg, a.service, st, q, logger).Register(a.mux)
	return a, nil
}

// Capability returns the LLM client, or the disabled capability when the
// configuration turns it off.
func Capability(cfg config.Config, logger zerolog.Logger) llm.Capability {
	if !cfg.LLM.Enabled {
		logger.Info().Msg("llm disabled; using local heuristics only")
		return llm.Disabled{}
	}
	if cfg.LLM.APIKey == "" {
		logger.Warn().Msg("no llm api key configured; using local heuristics only")
	}
	return llm.New(cfg.LLM, cfg.Prompts, nil, logger)
}

// Load satisfies dataset.Source so the watched snapshot can be swapped in
// once Run starts.
func (a *App) Load(ctx context.Context) (*dataset.Dataset, error) {
	return a.source.Load(ctx)
}

// Run starts workers, the dataset watcher and the HTTP server until ctx is
// done.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.WatchDataset {
		if csv, ok := a.source.(*dataset.CSVSource); ok {
			watched, err := dataset.Watch(ctx, csv, a.logger)
			if err != nil {
				return fmt.Errorf("watch dataset: %w", err)
			}
			a.source = watched
			a.logger.Info().Str("path", csv.Path()).Msg("watching dataset for changes")
		}
	}

	a.queue.Start(ctx)
	srv := &http.Server{Addr: a.cfg.HTTPPort, Handler: a.mux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info().Str("addr", a.cfg.HTTPPort).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		a.queue.Stop(shutdownCtx)
		return err
	})
	err := g.Wait()
	a.logger.Info().Msg("shutdown complete")
	return err
}

// Start launches the executor without the HTTP server, for one-shot use.
func (a *App) Start(ctx context.Context) { a.queue.Start(ctx) }

// Close releases the run store and any SQL dataset connection.
func (a *App) Close() error {
	var errs []error
	if closer, ok := a.source.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

func (a *App) Service() *service.Service { return a.service }
func (a *App) Mux() *http.ServeMux { return a.mux }
