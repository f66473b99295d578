/*
Package handler provides the HTTP handlers and routing setup for the StickyChat server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"stickychat/internal/app/priority"
	"stickychat/internal/pkg/auth/jwt"
	"stickychat/internal/pkg/limiter"
	"stickychat/internal/pkg/logx"
	"stickychat/internal/pkg/resp"
)

const (
	SessionRate  = 0.2
	SessionBurst = 5
	ConnectRate  = 0.2
	ConnectBurst = 5
)

// Limiters are the per-IP limiters owned by the router. Close stops their cleanup loops.
type Limiters struct {
	Session *limiter.Keyed
	Connect *limiter.Keyed
}

// NewLimiters builds the router's per-IP limiters.
func NewLimiters() *Limiters {
	return &Limiters{
		Session: limiter.NewKeyed("session", rate.Limit(SessionRate), SessionBurst),
		Connect: limiter.NewKeyed("connect", rate.Limit(ConnectRate), ConnectBurst),
	}
}

// Close stops the limiters' background cleanup.
func (l *Limiters) Close() {
	l.Session.Close()
	l.Connect.Close()
}

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It configures CORS, applies global and per-route middleware, and mounts the API,
// WebSocket, health, and metrics endpoints.
func Router(deps *AppDeps, limiters *Limiters) http.Handler {
	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger(deps.Config.InstanceID))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		logx.Debug("Health check endpoint hit")

		data := map[string]any{
			"status":   "ok",
			"service":  "StickyChat Server",
			"instance": deps.Config.InstanceID,
			"sessions": deps.Hub.Count(),
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.With(limiters.Session.Middleware).Post("/session", HandleCreateSession(deps))
		api.Get("/session/challenge", HandleGetChallenge(deps))
		api.Get("/channels", HandleListChannels(deps))

		api.Group(func(authed chi.Router) {
			authed.Use(jwt.RequireIdentity)

			authed.Get("/dm", HandleGetDMState(deps))
			authed.Get("/dm/messageable", HandleListMessageable(deps))

			authed.Group(func(staff chi.Router) {
				staff.Use(RequirePriority(priority.Staff))

				staff.Post("/channels", HandleCreateChannel(deps))
				staff.Delete("/channels/{id}", HandleDeleteChannel(deps))
				staff.Get("/dm/disabled", HandleListDisabled(deps))
				staff.Get("/online", HandleListOnline(deps))
			})

			authed.With(RequirePriority(priority.Admin)).Post("/system", HandleSendSystemMessage(deps))
		})
	})

	r.With(
		limiters.Connect.Middleware,
		jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret),
	).Get("/ws", HandleWebSocket(deps, wsUpgrader))

	return r
}
