package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proctora_backend/internal/config"
	"proctora_backend/internal/controller"
	"proctora_backend/internal/repository"
	"proctora_backend/internal/service"
	"proctora_backend/pkg/configwatcher"
	"proctora_backend/pkg/database"
	"proctora_backend/pkg/logger"
	"proctora_backend/pkg/monitoring"
	"proctora_backend/pkg/security"
	"proctora_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user      *repository.UserRepository
	batch     *repository.BatchRepository
	test      *repository.TestRepository
	question  *repository.QuestionRepository
	attempt   *repository.AttemptRepository
	violation *repository.ViolationRepository
	schedule  *repository.ExpiryScheduleRepository
}

type services struct {
	auth      *service.AuthService
	storage   *service.StorageService
	test      *service.TestService
	batch     *service.BatchService
	attempt   *service.AttemptService
	scheduler *service.ExpiryScheduler
}

type controllers struct {
	auth    *controller.AuthController
	test    *controller.TestController
	attempt *controller.AttemptController
	admin   *controller.AdminController
	health  *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:      repository.NewUserRepository(db),
		batch:     repository.NewBatchRepository(db),
		test:      repository.NewTestRepository(db),
		question:  repository.NewQuestionRepository(db),
		attempt:   repository.NewAttemptRepository(db),
		violation: repository.NewViolationRepository(rdb),
		schedule:  repository.NewExpiryScheduleRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.test = service.NewTestService(repos.test, repos.question, repos.batch, repos.attempt)
	s.batch = service.NewBatchService(repos.batch)

	s.scheduler = service.NewExpiryScheduler(repos.schedule, cfg)
	s.attempt = service.NewAttemptService(repos.attempt, repos.test, repos.question, repos.violation, s.scheduler, cfg)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:    controller.NewAuthController(s.auth),
		test:    controller.NewTestController(s.test),
		attempt: controller.NewAttemptController(s.attempt, s.test),
		admin:   controller.NewAdminController(s.test, s.batch, s.attempt, s.storage),
		health:  controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window()))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 启动到期自动交卷的后台轮询，以及配置热加载
func (a *App) startBackgroundTasks(s *services) {
	go s.scheduler.Run(s.attempt)

	go configwatcher.WatchConfig("configs/config.yaml", a.Config, func(raw interface{}) {
		newCfg, ok := raw.(*config.Config)
		if !ok {
			return
		}
		// 考试参数支持热调整（如临时放宽违规阈值）。
		// 请求协程还在并发读取，必须原子发布
		a.Config.PublishExam(newCfg.Exam)
		for _, cb := range a.configCallbacks {
			cb(newCfg)
		}
		logger.Log.Info("config reloaded",
			zap.Int("maxViolations", newCfg.Exam.MaxViolations))
	})
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db, rdb)
	services := app.initServices(repos, cfg)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("proctora-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
			}
		}()
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
		router.Static("/api/uploads", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 停止到期调度轮询
	if a.services != nil && a.services.scheduler != nil {
		a.services.scheduler.Stop()
	}

	// 关闭服务
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
