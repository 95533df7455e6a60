package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/chat-drawer/backend/internal/handler/drawer"
	"github.com/zhouzirui/chat-drawer/backend/internal/handler/persona"
	"github.com/zhouzirui/chat-drawer/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/chat-drawer/backend/internal/middleware"
	personaModel "github.com/zhouzirui/chat-drawer/backend/internal/model/persona"
	drawerService "github.com/zhouzirui/chat-drawer/backend/internal/service/drawer"
	"github.com/zhouzirui/chat-drawer/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, drawers *drawerService.Service, streams *stream.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		persona.New(personas).RegisterRoutes(api)
		drawer.New(drawers).RegisterRoutes(api)
		streams.RegisterRoutes(api)
	})

	return r
}
