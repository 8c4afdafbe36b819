package app

import (
	"github.com/ggonzalez94/insights-mcp/internal/catalog"
	"github.com/ggonzalez94/insights-mcp/internal/dispatch"
	clierr "github.com/ggonzalez94/insights-mcp/internal/errors"
	"github.com/ggonzalez94/insights-mcp/internal/executor"
	"github.com/ggonzalez94/insights-mcp/internal/httpx"
	"github.com/ggonzalez94/insights-mcp/internal/journal"
	"github.com/ggonzalez94/insights-mcp/internal/metrics"
	"github.com/ggonzalez94/insights-mcp/internal/registry"
	"github.com/ggonzalez94/insights-mcp/internal/resolver"
	"github.com/ggonzalez94/insights-mcp/internal/security"
)

// engine holds everything a dispatcher needs. It is built once per command.
type engine struct {
	catalog    *catalog.Catalog
	chains     *registry.Registry
	metrics    *metrics.Metrics
	journal    *journal.Store
	dispatcher *dispatch.Dispatcher
}

func (s *runtimeState) ensureEngine() (*engine, error) {
	if s.engine != nil {
		return s.engine, nil
	}
	settings := s.settings

	cat, err := catalog.Load(settings.CatalogPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeConfig, "load catalog", err)
	}
	chains, err := registry.Default().WithOverrides(settings.Chains)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeConfig, "apply chain overrides", err)
	}

	client := httpx.New(settings.Timeout)
	m := metrics.New()
	negotiator := security.NewNegotiator(cat.Schemes, security.Options{
		HTTPClient: client.HTTPClient(),
		Observer:   m,
		Logger:     s.log,
		Now:        s.runner.now,
	})

	e := &engine{catalog: cat, chains: chains, metrics: m}
	opts := dispatch.Options{
		Catalog:    cat,
		Topics:     settings.Topics,
		BaseURL:    settings.BaseURL,
		Executors:  executor.Default(executor.Deps{HTTP: client, Chains: chains}),
		Resolvers:  resolver.Default(),
		Negotiator: negotiator,
		Chains:     chains,
		Metrics:    m,
		Logger:     s.log,
		Now:        s.runner.now,
	}
	if settings.JournalEnabled {
		store, err := journal.Open(settings.JournalPath, settings.JournalLockPath, settings.JournalRetention)
		if err != nil {
			// A broken journal never blocks invocations.
			s.log.Warn().Err(err).Str("path", settings.JournalPath).Msg("journal disabled")
		} else {
			e.journal = store
			opts.Journal = store
		}
	}

	d, err := dispatch.New(opts)
	if err != nil {
		_ = e.journal.Close()
		return nil, err
	}
	e.dispatcher = d
	s.engine = e
	return e, nil
}

func (s *runtimeState) close() {
	if s.engine != nil {
		_ = s.engine.journal.Close()
	}
}
