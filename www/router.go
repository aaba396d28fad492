package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"

	"trackcore/config"
	"trackcore/fleetstate"
	"trackcore/geocode"
	"trackcore/realtime"
	"trackcore/store"
)

// TokenVerifier checks a connect-time token and returns the identity it
// proves. Verification is owned by the HTTP auth layer; the realtime core
// only sees the resulting opaque identity.
type TokenVerifier func(token string) (identity string, ok bool)

type Handlers struct {
	hub         *realtime.Hub
	db          *store.DB
	fleet       *fleetstate.Manager
	geo         *geocode.Router
	sessions    *sessions.CookieStore
	upgrader    websocket.Upgrader
	realtimeCfg config.RealtimeConfig
	verifyToken TokenVerifier
}

type Deps struct {
	Hub         *realtime.Hub
	DB          *store.DB
	Fleet       *fleetstate.Manager
	Geocode     *geocode.Router
	Config      *config.Config
	VerifyToken TokenVerifier
}

func NewRouter(deps Deps) http.Handler {
	origin := deps.Config.Web.CORSOrigin

	h := &Handlers{
		hub:         deps.Hub,
		db:          deps.DB,
		fleet:       deps.Fleet,
		geo:         deps.Geocode,
		sessions:    newSessionStore(deps.Config.Web.SessionSecret),
		realtimeCfg: deps.Config.Realtime,
		verifyToken: deps.VerifyToken,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if origin == "*" || origin == "" {
					return true
				}
				return r.Header.Get("Origin") == origin
			},
		},
	}

	h.ensureDefaultAdmin(deps.DB)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(origin))

	// Realtime transports
	r.Get("/ws", h.handleWS)
	if deps.Config.Realtime.SSEFallback {
		r.Get("/events", h.handleSSE)
	}

	// Auth
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	// Public reads
	r.Get("/api/health", h.apiHealth)
	r.Get("/api/track/{trackingNumber}", h.apiTrack)
	r.Get("/api/shipments", h.apiListShipments)
	r.Get("/api/shipments/{id}", h.apiGetShipment)
	r.Get("/api/shipments/{id}/history", h.apiShipmentHistory)
	r.Get("/api/drivers", h.apiListDrivers)
	r.Get("/api/fleet/positions", h.apiFleetPositions)

	// Driver position ingest over plain HTTP, for apps that cannot hold a
	// socket open.
	r.Post("/api/drivers/{code}/location", h.apiDriverLocation)

	// Admin writes
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/api/shipments", h.apiCreateShipment)
		r.Put("/api/shipments/{id}", h.apiUpdateShipment)
		r.Post("/api/shipments/{id}/status", h.apiUpdateShipmentStatus)
		r.Post("/api/shipments/{id}/assign", h.apiAssignDriver)
		r.Post("/api/drivers", h.apiCreateDriver)
		r.Put("/api/drivers/{id}", h.apiUpdateDriver)
	})

	return r
}
