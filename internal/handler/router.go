package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/handler/chat"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/handler/page"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/handler/stream"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/bamboo-onboard/backend/internal/middleware"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/service/onboarding"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/store"
	"github.com/zhouzirui/bamboo-onboard/backend/pkg/utils"
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Sessions       *onboarding.Manager
	Gateway        *store.Gateway
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	chatHandler := chat.New(deps.Sessions, log)
	streamHandler := stream.New(deps.Sessions, log)
	wsHandler := stream.NewWebSocketHandler(deps.Sessions, log, deps.AllowedOrigins)
	pageHandler := page.New(deps.Gateway, log)

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api/chat", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
	})

	wsHandler.RegisterWebSocketRoutes(r)
	pageHandler.RegisterRoutes(r)

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
