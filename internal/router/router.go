// Package router registers the HTTP routes and their middleware chains.
package router

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/handler"
	"github.com/netcontrolapp/netcontrol/internal/metrics"
	"github.com/netcontrolapp/netcontrol/internal/middleware"
	"github.com/netcontrolapp/netcontrol/internal/model"
)

// Guard is the middleware chain for authenticated routes: token check, then
// account lookup.
type Guard struct {
	JWTSecret string
	Accounts  middleware.AccountResolver
	Log       *zap.Logger
}

func (g Guard) chain() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{middleware.JWTAuth(g.JWTSecret), middleware.RequireAccount(g.Accounts, g.Log)}
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	e.GET("/metrics", metrics.Handler())
}

// RegisterAuth registers the auth endpoints. limit applies to the
// credential-accepting public routes only.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, guard Guard, limit echo.MiddlewareFunc) {
	g := e.Group("/api/auth")
	g.POST("/register", a.Register, limit)
	g.POST("/login", a.Login, limit)
	g.POST("/refresh", a.Refresh, limit)
	g.POST("/refresh-access", a.RefreshAccess, limit)
	g.POST("/logout", a.Logout)

	auth := e.Group("/api/auth", guard.chain()...)
	auth.GET("/me", a.Me)
	auth.PUT("/password", a.ChangePassword)
}

// RegisterNetOperations registers nets, check-ins, exports and the
// callsign lookup. cache wraps the lookup only.
func RegisterNetOperations(e *echo.Echo, n *handler.NetOperationHandler, r *handler.ReportHandler, l *handler.LookupHandler, guard Guard, cache echo.MiddlewareFunc) {
	g := e.Group("/api/net-operations", guard.chain()...)
	g.GET("", n.List)
	g.POST("", n.Create)
	g.POST("/schedule", n.Schedule)
	g.GET("/lookup/:callsign", l.Lookup, cache)
	g.GET("/:id", n.Get)
	g.PUT("/:id", n.Update)
	g.DELETE("/:id", n.Delete)
	g.PUT("/:id/notes", n.UpdateNotes)
	g.PUT("/:id/start", n.Start)
	g.PUT("/:id/complete", n.Complete)
	g.GET("/:id/pdf", r.ExportNet)
	g.POST("/:id/checkins", n.AddCheckIn)
	g.DELETE("/:id/checkins/:checkinId", n.RemoveCheckIn)
	g.PUT("/:id/checkins/:checkinId/notes", n.UpdateCheckInNotes)
	g.PUT("/:id/checkins/:checkinId/commented", n.SetCheckInCommented)
}

// RegisterSettings registers per-account settings and serves uploads.
func RegisterSettings(e *echo.Echo, s *handler.SettingsHandler, guard Guard) {
	g := e.Group("/api/settings", guard.chain()...)
	g.GET("", s.Get)
	g.PUT("", s.Update)
	g.POST("/logo", s.UploadLogo)
	g.DELETE("/logo", s.DeleteLogo)

	e.GET("/uploads/:name", s.ServeUpload)
}

// RegisterAdmin registers the admin-only account and report endpoints.
func RegisterAdmin(e *echo.Echo, u *handler.UserHandler, r *handler.ReportHandler, guard Guard) {
	g := e.Group("/api/users", append(guard.chain(), middleware.RequireRole(model.RoleAdmin))...)
	g.GET("", u.List)
	g.POST("", u.Create)
	g.POST("/reports/generate", r.Generate)
	g.PUT("/:id", u.Update)
	g.DELETE("/:id", u.Delete)
	g.PUT("/:id/reset-password", u.ResetPassword)
	g.PUT("/:id/role", u.SetRole)
	g.PUT("/:id/enabled", u.SetEnabled)
}
