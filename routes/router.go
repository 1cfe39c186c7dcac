package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ideahub/ideahub/config"
	"github.com/ideahub/ideahub/controllers"
	"github.com/ideahub/ideahub/middleware"
	"github.com/ideahub/ideahub/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, cfg config.AppConfig) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "n-posts", "tag", "business"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// Uploaded resource files are served statically.
	r.Static("/uploads", cfg.UploadDir)

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	userController := controllers.NewUserController(db, cfg)
	postController := controllers.NewPostController(db, cfg)

	authed := middleware.AuthRequired(db, cfg)

	userGroup := r.Group("/user")
	{
		credentials := userGroup.Group("")
		credentials.Use(middleware.RateLimitMiddleware(cfg))
		credentials.POST("/register", userController.Register)
		credentials.POST("/login", userController.Login)

		userGroup.GET("/getAll", userController.ListUsers)
		userGroup.GET("/:userId", authed, userController.GetProfile)
		userGroup.PUT("/:userId", authed, userController.UpdateProfile)
		userGroup.DELETE("/:userId", authed, userController.DeleteProfile)
		userGroup.PATCH("/:userId/moderator", authed, userController.ToggleModerator)
	}

	postGroup := r.Group("/api/posts")
	postGroup.Use(authed)
	{
		postGroup.POST("", postController.CreatePost)
		postGroup.GET("/all", postController.ListAllPosts)
		postGroup.GET("/limit", postController.ListLimitedPosts)
		postGroup.GET("/tag", postController.ListPostsByTag)
		postGroup.GET("/business", postController.ListPostsByBusiness)
		postGroup.GET("/getPost/:postId", postController.GetPost)
		postGroup.GET("/myposts", postController.ListUserPosts)
		postGroup.PUT("/:postId", postController.UpdatePost)
		postGroup.DELETE("/:postId", postController.DeletePost)
		postGroup.PUT("/:postId/upvote", postController.UpdateUpvote)
		postGroup.PUT("/:postId/downvote", postController.UpdateDownvote)
		postGroup.PUT("/addComment/:postId", postController.AddComment)
		postGroup.PUT("/like/:postId/by/:userId", postController.ToggleLike)
	}

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
