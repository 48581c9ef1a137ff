// Package bootstrap builds the service graph from configuration. Both the API
// server and onboardctl start from here.
package bootstrap

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/config"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/handler"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/metrics"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/service/ai"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/service/insight"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/service/onboarding"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/store"
)

// App holds the wired services.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gateway  *store.Gateway
	Insights *insight.Fetcher
	Sessions *onboarding.Manager

	closeStore func() error
}

// New opens the store and builds every service. Call Close when done.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	m := metrics.New()

	repo, closeStore, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}
	gateway := store.NewGateway(repo, log, m)

	fetcher := insight.NewFetcher(NewAnalyzer(ctx, cfg, log), insight.Options{
		Timeout:      cfg.Analysis.Timeout,
		ProbeTimeout: cfg.Analysis.ProbeTimeout,
		Rate:         cfg.Analysis.Rate,
		Burst:        cfg.Analysis.Burst,
		Logger:       log,
		Metrics:      m,
	})

	sessions := onboarding.NewManager(onboarding.ManagerConfig{
		Gateway:  gateway,
		Insights: fetcher,
		Pacer:    onboarding.DelayPacer{Delay: cfg.Chat.MessageDelay},
		Logger:   log,
		Metrics:  m,
	})

	return &App{
		Config:     cfg,
		Logger:     log,
		Metrics:    m,
		Gateway:    gateway,
		Insights:   fetcher,
		Sessions:   sessions,
		closeStore: closeStore,
	}, nil
}

// NewAnalyzer picks the website analyzer: the remote analysis service when
// configured, else the Ark model, else none (every insight falls back).
func NewAnalyzer(ctx context.Context, cfg *config.Config, log *zap.Logger) insight.Analyzer {
	switch {
	case cfg.Analysis.Enabled():
		log.Info("using remote website analysis", zap.String("base_url", cfg.Analysis.BaseURL))
		return insight.NewClient(cfg.Analysis.BaseURL, cfg.Analysis.Token, nil)
	case cfg.Ark.Enabled():
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			log.Warn("failed to create ark chat model, insights will use the fallback", zap.Error(err))
			return nil
		}
		analyzer, err := ai.NewAnalyzer(ctx, chatModel, log)
		if err != nil {
			log.Warn("failed to build ark analyzer, insights will use the fallback", zap.Error(err))
			return nil
		}
		log.Info("using ark model for website analysis", zap.String("model", cfg.Ark.Model))
		return analyzer
	default:
		log.Info("no website analyzer configured, insights will use the fallback")
		return nil
	}
}

// Router builds the HTTP handler.
func (a *App) Router() http.Handler {
	return handler.NewRouter(handler.Deps{
		Sessions:       a.Sessions,
		Gateway:        a.Gateway,
		Metrics:        a.Metrics,
		Logger:         a.Logger,
		AllowedOrigins: a.Config.Server.AllowedOrigins,
	})
}

// Close ends every session and releases the store.
func (a *App) Close() error {
	a.Sessions.CloseAll()
	return a.closeStore()
}
