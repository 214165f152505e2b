package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/pageflow"
	"github.com/aretw0/pageflow/internal/config"
	"github.com/aretw0/pageflow/internal/merge"
	"github.com/aretw0/pageflow/internal/presentation/graph"
	"github.com/aretw0/pageflow/internal/presentation/tui"
	"github.com/aretw0/pageflow/internal/runtime"
	pfhttp "github.com/aretw0/pageflow/pkg/adapters/http"
	"github.com/aretw0/pageflow/pkg/adapters/memory"
	"github.com/aretw0/pageflow/pkg/adapters/script"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/location"
	"github.com/aretw0/pageflow/pkg/observability"
)

// NavigateOptions configures a headless navigation session.
type NavigateOptions struct {
	// Base is the absolute URL of the first document.
	Base string
	// Paths are pushed one after the other once the first document ran.
	Paths   []string
	Config  config.Config
	Out     io.Writer
	Mermaid bool
	Metrics bool
	Quiet   bool
}

// session holds the wiring of one navigate run.
type session struct {
	ctrl     *pageflow.Controller
	host     *script.Host
	nav      *memory.Navigator
	recorder *observability.Recorder
	metrics  *observability.Metrics
	logger   *slog.Logger
	events   []observability.Event
}

// RunNavigate loads Base over HTTP, then pushes every path and prints the
// stage trace of each navigation.
func RunNavigate(ctx context.Context, opts NavigateOptions) error {
	cfg := opts.Config
	logger, err := createLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	base, err := location.Parse(opts.Base, nil)
	if err != nil {
		return err
	}
	if base.Hostname == "" {
		return fmt.Errorf("base %q must be an absolute URL", opts.Base)
	}
	if cfg.Navigate.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Navigate.Timeout)
		defer cancel()
	}

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("Failed to close history store", "error", err)
		}
	}()

	fetcher := pfhttp.NewFetcher(
		pfhttp.WithUserAgent(cfg.Navigate.UserAgent),
		pfhttp.WithFetchLogger(logger),
	)
	router := pfhttp.NewRouter(fetcher, pfhttp.WithBase(base), pfhttp.WithRouterLogger(logger))

	// The first document arrives fully rendered, as a server would send it.
	doc, err := router.Route(ctx, runtime.NewState(base, nil))
	if err != nil {
		return fmt.Errorf("load %s: %w", opts.Base, err)
	}
	merge.SetPrerendered(doc)

	s := &session{
		nav:      memory.NewNavigator(),
		recorder: observability.NewRecorder(),
		metrics:  observability.NewMetrics(),
		logger:   logger,
	}
	ctrlOpts := []pageflow.Option{
		pageflow.WithRouter(router.Func()),
		pageflow.WithHistoryStore(store),
		pageflow.WithNavigator(s.nav),
		pageflow.WithFallbackDelay(cfg.Navigate.FallbackDelay),
		pageflow.WithLifecycleHooks(observability.Combine(
			s.recorder.Hooks(),
			s.metrics.Hooks(),
			observability.LoggingHooks(logger),
		)),
		pageflow.WithLogger(logger),
	}
	if cfg.Navigate.Scripts {
		s.host = script.New(
			script.WithFetcher(fetcher),
			script.WithBase(base),
			script.WithOutput(opts.Out),
			script.WithLogger(logger),
		)
		ctrlOpts = append(ctrlOpts, pageflow.WithResourceLoader(s.host))
	}
	s.ctrl = pageflow.New(doc, ctrlOpts...)
	if s.host != nil {
		s.host.Attach(s.ctrl.Engine())
	}

	printer := tui.NewPrinter(opts.Out)
	if !opts.Quiet && printer.Styled() {
		tui.PrintBanner(opts.Out, pageflow.Version)
	}

	if _, err := s.ctrl.Start(ctx, location.Format(base), nil); err != nil {
		return err
	}
	s.runDocumentScripts(ctx)
	if err := s.flush(printer, "start "+location.Format(base)); err != nil {
		return err
	}

	var failed error
	for _, path := range opts.Paths {
		_, err := s.ctrl.Push(ctx, path, nil)
		switch {
		case errors.Is(err, domain.ErrCrossOrigin):
			printSystemMessage(opts.Out, "Leaving origin for %s", path)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return handleExecutionError(err)
		case err != nil:
			printSystemMessage(opts.Out, "Navigation to %s failed: %v", path, err)
			failed = errors.Join(failed, err)
		}
		if err := s.flush(printer, "push "+path); err != nil {
			return err
		}
	}

	for _, href := range s.nav.Assigned() {
		printSystemMessage(opts.Out, "Full load: %s", href)
	}
	if opts.Mermaid {
		var overlay *graph.Overlay
		if cur := s.ctrl.Current(); cur != nil {
			overlay = &graph.Overlay{CurrentState: cur.ID}
		}
		fmt.Fprintf(opts.Out, "\n```mermaid\n%s```\n", graph.GenerateMermaid(s.events, overlay))
	}
	if opts.Metrics {
		fmt.Fprintln(opts.Out)
		if err := s.metrics.WriteText(opts.Out); err != nil {
			return err
		}
	}
	return failed
}

// runDocumentScripts executes the scripts of the first document. Their
// registrations replay the stages that already fired.
func (s *session) runDocumentScripts(ctx context.Context) {
	if s.host == nil {
		return
	}
	for _, res := range merge.Scripts(s.ctrl.Engine().Document()) {
		if err := s.host.Load(ctx, res); err != nil {
			s.logger.Warn("Document script failed", "src", res.URL, "error", err)
		}
	}
}

func (s *session) flush(p *tui.Printer, title string) error {
	events := s.recorder.Events()
	s.recorder.Reset()
	s.events = append(s.events, events...)
	return p.Trace(title, events)
}
