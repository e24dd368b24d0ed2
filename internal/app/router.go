package app

import (
	"proctora_backend/internal/config"
	"proctora_backend/internal/middleware"
	"proctora_backend/internal/model"

	"proctora_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerUserRoutes(authGroup, c)
	}

	// 3. 管理员相关接口
	a.registerAdminRoutes(router, c, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
}

func (a *App) registerUserRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.GetProfile)

	// 可参加的试卷
	rg.GET("/tests", c.test.ListAvailable)
	rg.POST("/tests/:id/start", c.attempt.Start)

	// 考试进行中
	attempts := rg.Group("/attempts")
	{
		attempts.GET("", c.attempt.ListMyAttempts)
		attempts.GET("/:id/play", c.attempt.Play)
		attempts.PUT("/:id/answer", c.attempt.SaveAnswer)
		attempts.POST("/:id/violation", c.attempt.RecordViolation)
		attempts.GET("/:id/violations", c.attempt.GetViolations)
		attempts.POST("/:id/submit", c.attempt.Submit)
		attempts.GET("/:id/result", c.attempt.GetResult)
	}
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		admin.POST("/tests", c.admin.CreateTest)
		admin.GET("/tests", c.admin.ListTests)
		admin.GET("/tests/:id", c.admin.GetTest)
		admin.PUT("/tests/:id", c.admin.UpdateTest)
		admin.DELETE("/tests/:id", c.admin.DeleteTest)
		admin.GET("/tests/:id/results", c.admin.ListTestResults)

		admin.POST("/tests/:id/questions", c.admin.AddQuestion)
		admin.PUT("/questions/:questionId", c.admin.UpdateQuestion)
		admin.DELETE("/questions/:questionId", c.admin.DeleteQuestion)
		admin.POST("/questions/images", c.admin.UploadQuestionImage)

		admin.POST("/batches", c.admin.CreateBatch)
		admin.GET("/batches", c.admin.ListBatches)
		admin.DELETE("/batches/:id", c.admin.DeleteBatch)
		admin.POST("/batches/:id/users/:userId", c.admin.AddBatchUser)
		admin.DELETE("/batches/:id/users/:userId", c.admin.RemoveBatchUser)

		admin.DELETE("/attempts/:id/violations", c.admin.ResetViolations)
	}
}
