package router

import (
	"ideabox/internal/handlers"
	"ideabox/internal/middleware"
	"ideabox/internal/services"
	"ideabox/internal/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps carries everything the routes need. main builds it once at startup.
type Deps struct {
	Sessions  *session.Manager
	Broker    *services.AggregateBroker
	Users     *services.UserService
	Ideas     *services.IdeaService
	Votes     *services.VoteService
	Comments  *services.CommentService
	Media     *services.MediaService
	Decisions *services.DecisionService
	Lookups   *services.LookupService
	Stats     *services.StatisticsService

	CORSOrigins []string
	UploadDir   string
	LoginPerMin int
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	config := cors.DefaultConfig()
	config.AllowOrigins = d.CORSOrigins
	if len(d.CORSOrigins) == 0 || (len(d.CORSOrigins) == 1 && d.CORSOrigins[0] == "*") {
		config.AllowOrigins = nil
		config.AllowAllOrigins = true
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(config))

	// Handlers
	authHandler := handlers.NewAuthHandler(d.Users, d.Sessions)
	userHandler := handlers.NewUserHandler(d.Users, d.Sessions)
	ideaHandler := handlers.NewIdeaHandler(d.Ideas, d.Comments, d.Media, d.Decisions)
	voteHandler := handlers.NewVoteHandler(d.Votes)
	adminHandler := handlers.NewAdminHandler(d.Decisions)
	commentHandler := handlers.NewCommentHandler(d.Comments)
	lookupHandler := handlers.NewLookupHandler(d.Lookups, d.Stats)
	liveHandler := handlers.NewLiveHandler(d.Votes, d.Broker, d.CORSOrigins)

	if d.UploadDir != "" {
		r.Static("/uploads", d.UploadDir) // 上传的图片和附件
	}

	api := r.Group("/api")

	// 公共路由 (Public Routes)
	limited := middleware.RateLimit(d.LoginPerMin)
	api.POST("/users", limited, authHandler.Register)    // 注册
	api.POST("/users/login", limited, authHandler.Login) // 登录
	api.GET("/services", lookupHandler.Services)         // 部门列表
	api.GET("/services/:id", lookupHandler.Service)      // 单个部门

	// 受保护路由 (Protected Routes)
	authorized := api.Group("")
	authorized.Use(middleware.Authenticate(d.Sessions))
	{
		authorized.POST("/users/logout", authHandler.Logout) // 退出登录
		authorized.GET("/session", authHandler.Session)      // 当前会话

		authorized.GET("/users", userHandler.List)
		authorized.GET("/users/:id", userHandler.Get)
		authorized.PUT("/users/:id", userHandler.Update)
		authorized.DELETE("/users/:id", userHandler.Delete)
		authorized.GET("/users/:id/service", userHandler.Service)
		authorized.PATCH("/users/:id/service", userHandler.SetService)
		authorized.PATCH("/users/:id/picture", userHandler.SetPicture)

		authorized.GET("/ideas", ideaHandler.List)
		authorized.GET("/ideas/history", ideaHandler.History)
		authorized.POST("/ideas", ideaHandler.Create)
		authorized.POST("/ideas/transfer", ideaHandler.Transfer) // 把想法转给占位用户
		authorized.GET("/ideas/:id", ideaHandler.Get)
		authorized.GET("/ideas/:id/creator", ideaHandler.Creator)
		authorized.GET("/ideas/:id/categories", ideaHandler.Categories)
		authorized.GET("/ideas/:id/participants", ideaHandler.Participants)
		authorized.GET("/ideas/:id/workflow", ideaHandler.Workflow) // 时间线
		authorized.GET("/ideas/:id/comments", ideaHandler.Comments)
		authorized.GET("/ideas/:id/medias", ideaHandler.Medias)
		authorized.POST("/ideas/:id/medias", ideaHandler.UploadMedias)

		authorized.GET("/ideas/:id/votes", voteHandler.Aggregate)
		authorized.GET("/ideas/:id/votes/live", liveHandler.Stream) // websocket
		authorized.POST("/votes/upsert", voteHandler.Upsert)
		authorized.POST("/votes/delete-voter-votes", voteHandler.DeleteVoterVotes)

		authorized.POST("/comments", commentHandler.Create)
		authorized.POST("/comments/transfer", commentHandler.Transfer)

		authorized.GET("/categories", lookupHandler.Categories)
		authorized.GET("/categories/:id", lookupHandler.Category)
		authorized.GET("/status", lookupHandler.Statuses)
		authorized.GET("/status/:id", lookupHandler.Status)
		authorized.GET("/statistics", lookupHandler.Statistics)
	}

	// 管理员路由 (Admin Routes)
	admin := authorized.Group("")
	admin.Use(middleware.AdminRequired())
	{
		admin.PUT("/ideas/:id", adminHandler.Record)    // 裁决: 通过 / 驳回
		admin.DELETE("/ideas/:id", adminHandler.Delete) // 删除想法

		admin.POST("/services", lookupHandler.CreateService)
		admin.PUT("/services/:id", lookupHandler.RenameService)
		admin.DELETE("/services/:id", lookupHandler.DeleteService)
	}
}
