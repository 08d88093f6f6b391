package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/adapters/directory"
	"github.com/dkeye/Gather/internal/adapters/signal"
	"github.com/dkeye/Gather/internal/app"
	"github.com/dkeye/Gather/internal/config"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware assigns every browser a stable token so its
// session controller survives reconnects.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, dir *directory.InMemory, registry *app.Registry, hub *app.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("GatherSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &MeetingHandler{Directory: dir}
	wsCtl := signal.NewSessionWSController(registry, hub, dir, cfg.ReadLimit, cfg.PingPeriod)

	api := r.Group("/api")

	api.GET("/meetings", h.listMeetings)
	api.POST("/meetings/instant", h.createInstant)
	api.POST("/meetings/schedule", h.scheduleMeeting)
	api.DELETE("/meetings/:id", h.cancelMeeting)

	api.GET("/ws/session", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws session endpoint hit")
		wsCtl.HandleSession(ctx, c)
	})

	return r
}
