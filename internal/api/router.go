package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/api/handler"
	"github.com/qs3c/guitar_dice_server/internal/api/middleware"
	"github.com/qs3c/guitar_dice_server/internal/pkg/ratelimit"
	"github.com/qs3c/guitar_dice_server/internal/service"
)

type Router struct {
	authHandler      *handler.AuthHandler
	userHandler      *handler.UserHandler
	usageHandler     *handler.UsageHandler
	referralHandler  *handler.ReferralHandler
	chatHandler      *handler.ChatHandler
	websocketHandler *handler.WebSocketHandler
	resolver         service.SessionResolver
	quotaService     *service.QuotaService
	apiLimiter       ratelimit.Limiter
	cfg              *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	usageHandler *handler.UsageHandler,
	referralHandler *handler.ReferralHandler,
	chatHandler *handler.ChatHandler,
	websocketHandler *handler.WebSocketHandler,
	resolver service.SessionResolver,
	quotaService *service.QuotaService,
	apiLimiter ratelimit.Limiter,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:      authHandler,
		userHandler:      userHandler,
		usageHandler:     usageHandler,
		referralHandler:  referralHandler,
		chatHandler:      chatHandler,
		websocketHandler: websocketHandler,
		resolver:         resolver,
		quotaService:     quotaService,
		apiLimiter:       apiLimiter,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger())
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	// 语音文件
	engine.Static(r.cfg.Upload.PublicPath, r.cfg.Upload.AudioDir)

	api := engine.Group("/api/v1")
	{
		// WebSocket 自带连接限流和认证
		api.GET("/ws", r.websocketHandler.Handle)

		rest := api.Group("")
		rest.Use(middleware.OriginCheck(r.cfg.CORS.AllowedOrigins))

		// 公开接口 - 认证
		auth := rest.Group("/auth")
		auth.Use(middleware.RateLimit(r.apiLimiter, middleware.IPKey))
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
			auth.POST("/logout", r.authHandler.Logout)
			auth.GET("/github", r.authHandler.GithubAuth)
			auth.GET("/github/callback", r.authHandler.GithubCallback)
		}

		// 公开接口 - 聊天历史（可选认证）
		public := rest.Group("")
		public.Use(middleware.OptionalAuth(r.resolver))
		public.Use(middleware.RateLimit(r.apiLimiter, nil))
		{
			public.GET("/chat/history", r.chatHandler.History)
		}

		// 需要认证的接口
		authenticated := rest.Group("")
		authenticated.Use(middleware.Auth(r.resolver))
		authenticated.Use(middleware.RateLimit(r.apiLimiter, nil))
		{
			authenticated.GET("/auth/me", r.authHandler.GetMe)

			// 用户
			user := authenticated.Group("/user")
			{
				user.GET("/profile", r.userHandler.GetProfile)
				user.PUT("/profile", r.userHandler.UpdateProfile)
			}

			// 次数
			usage := authenticated.Group("/usage")
			{
				usage.GET("/status", r.usageHandler.GetStatus)
				usage.POST("/increment-dice-roll", middleware.QuotaCheck(r.quotaService), r.usageHandler.IncrementDiceRoll)
				usage.POST("/watch-ad-reward", r.usageHandler.WatchAdReward)
			}

			// 邀请
			referrals := authenticated.Group("/referrals")
			{
				referrals.GET("/me", r.referralHandler.GetMine)
				referrals.POST("/redeem", r.referralHandler.Redeem)
			}

			// 聊天
			chat := authenticated.Group("/chat")
			{
				chat.POST("/message", r.chatHandler.SendMessage)
				chat.POST("/upload-audio", r.chatHandler.UploadAudio)
				chat.DELETE("/messages/:id", r.chatHandler.DeleteMessage)
			}
		}
	}

	return engine
}
