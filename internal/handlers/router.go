package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"asteriskgui/internal/auth"
	"asteriskgui/internal/metrics"
	"asteriskgui/internal/middleware"
	"asteriskgui/internal/models"
)

// RouterDeps collects everything the HTTP surface is built from. Metrics and
// Relay are optional.
type RouterDeps struct {
	Logger         *zap.Logger
	AuthMiddleware *middleware.AuthMiddleware
	LoginLimiter   *middleware.IPRateLimiter
	Metrics        *metrics.Metrics
	Relay          http.Handler
	CORSOrigins    []string
	RequestTimeout time.Duration

	Health   *HealthHandler
	Auth     *AuthHandler
	Users    *UserHandler
	SIP      *SIPHandler
	Queues   *QueueHandler
	Trunks   *TrunkHandler
	Config   *ConfigHandler
	Audit    *AuditHandler
	Asterisk *AsteriskHandler
	System   *SystemHandler
}

func NewRouter(d RouterDeps) http.Handler {
	perm := middleware.RequirePermission
	role := middleware.RequireRole

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(d.CORSOrigins))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.NotFound(NotFound)
	r.MethodNotAllowed(NotFound)
	r.Get("/health", d.Health.Health)
	if d.Relay != nil {
		r.Method(http.MethodGet, "/ws", d.Relay)
	}

	r.Route("/api", func(r chi.Router) {
		if d.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(d.RequestTimeout))
		}

		r.Route("/auth", func(r chi.Router) {
			r.With(d.LoginLimiter.Middleware).Post("/login", d.Auth.Login)
			r.Post("/refresh", d.Auth.Refresh)
			r.Group(func(r chi.Router) {
				r.Use(d.AuthMiddleware.RequireAuth)
				r.Get("/me", d.Auth.Me)
				r.Post("/logout", d.Auth.Logout)
			})
		})

		// Everything below requires a valid token or session.
		r.Group(func(r chi.Router) {
			r.Use(d.AuthMiddleware.RequireAuth)

			r.Route("/users", func(r chi.Router) {
				r.With(perm(auth.PermUsersRead)).Get("/", d.Users.List)
				r.With(perm(auth.PermUsersRead)).Get("/stats", d.Users.Stats)
				r.With(perm(auth.PermUsersRead)).Get("/{id}", d.Users.Get)
				r.With(perm(auth.PermUsersWrite)).Post("/", d.Users.Create)
				r.With(perm(auth.PermUsersWrite)).Put("/{id}", d.Users.Update)
				r.Post("/{id}/change-password", d.Users.ChangePassword)
				r.With(perm(auth.PermUsersWrite)).Post("/{id}/reset-password", d.Users.ResetPassword)
				r.With(perm(auth.PermUsersDelete)).Delete("/{id}", d.Users.Delete)
				r.With(perm(auth.PermUsersWrite)).Post("/{id}/deactivate", d.Users.Deactivate)
			})

			r.Route("/sip", func(r chi.Router) {
				r.With(perm(auth.PermSIPRead)).Get("/", d.SIP.List)
				r.With(perm(auth.PermSIPRead)).Get("/stats", d.SIP.Stats)
				r.With(perm(auth.PermSIPRead)).Get("/{id}", d.SIP.Get)
				r.With(perm(auth.PermSIPWrite)).Post("/", d.SIP.Create)
				r.With(perm(auth.PermSIPWrite)).Put("/{id}", d.SIP.Update)
				r.With(perm(auth.PermSIPDelete)).Delete("/{id}", d.SIP.Delete)
			})

			r.Route("/queues", func(r chi.Router) {
				r.With(perm(auth.PermQueuesRead)).Get("/", d.Queues.List)
				r.With(perm(auth.PermQueuesRead)).Get("/stats", d.Queues.Stats)
				r.With(perm(auth.PermQueuesRead)).Get("/{id}", d.Queues.Get)
				r.With(perm(auth.PermQueuesWrite)).Post("/", d.Queues.Create)
				r.With(perm(auth.PermQueuesWrite)).Put("/{id}", d.Queues.Update)
				r.With(perm(auth.PermQueuesDelete)).Delete("/{id}", d.Queues.Delete)
				r.With(perm(auth.PermQueuesWrite)).Post("/{id}/members", d.Queues.AddMember)
				r.With(perm(auth.PermQueuesWrite)).Delete("/{id}/members/{iface}", d.Queues.RemoveMember)
			})

			r.Route("/trunks", func(r chi.Router) {
				r.With(perm(auth.PermTrunksRead)).Get("/", d.Trunks.List)
				r.With(perm(auth.PermTrunksRead)).Get("/stats", d.Trunks.Stats)
				r.With(perm(auth.PermTrunksRead)).Get("/{id}", d.Trunks.Get)
				r.With(perm(auth.PermTrunksWrite)).Post("/", d.Trunks.Create)
				r.With(perm(auth.PermTrunksWrite)).Put("/{id}", d.Trunks.Update)
				r.With(perm(auth.PermTrunksDelete)).Delete("/{id}", d.Trunks.Delete)
			})

			r.Route("/config", func(r chi.Router) {
				configWrite := perm(auth.PermConfigWrite, auth.PermConfigDelete)

				r.With(perm(auth.PermConfigRead)).Get("/snapshots", d.Config.ListSnapshots)
				r.With(role(models.RoleAdmin, models.RoleOperator)).Post("/snapshots", d.Config.CreateSnapshot)
				r.With(configWrite).Post("/snapshots/{id}/restore", d.Config.RestoreSnapshot)
				r.With(configWrite).Delete("/snapshots/{id}", d.Config.DeleteSnapshot)
				r.With(perm(auth.PermConfigRead)).Get("/raw", d.Config.ListRaw)
				r.With(perm(auth.PermConfigRead)).Get("/raw/{filename}", d.Config.ReadRaw)
				r.With(configWrite).Put("/raw/{filename}", d.Config.WriteRaw)
				r.With(configWrite).Delete("/raw/{filename}", d.Config.DeleteRaw)
			})

			r.Route("/asterisk", func(r chi.Router) {
				r.Get("/status", d.Asterisk.Status)
				r.Get("/system-info", d.Asterisk.SystemInfo)
				r.Get("/sip-peers", d.Asterisk.SIPPeers)
				r.Get("/queues", d.Asterisk.Queues)
				r.With(perm(auth.PermSystemReload)).Post("/reload/pjsip", d.Asterisk.ReloadPJSIP)
				r.With(perm(auth.PermSystemReload)).Post("/reload/queues", d.Asterisk.ReloadQueues)
				r.With(perm(auth.PermSystemRestart)).Post("/reload/all", d.Asterisk.ReloadAll)
				r.With(perm(auth.PermSystemRestart)).Post("/connect", d.Asterisk.Connect)
			})

			r.Route("/audit", func(r chi.Router) {
				r.Use(perm(auth.PermAuditRead, auth.PermAuditDelete))
				r.Get("/logs", d.Audit.Logs)
				r.Get("/stats", d.Audit.Stats)
				r.With(perm(auth.PermAuditDelete)).Delete("/logs", d.Audit.Clear)
			})

			r.Route("/system", func(r chi.Router) {
				r.Use(role(models.RoleAdmin))
				r.Get("/config", d.System.Config)
				r.Put("/config", d.System.UpdateConfig)
				r.Post("/backup", d.System.Backup)
				r.Get("/backups", d.System.ListBackups)
				r.Post("/restore", d.System.Restore)
				r.Get("/interfaces", d.System.Interfaces)
				r.Get("/host", d.System.Host)
			})
		})
	})

	return r
}
