package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"collaborative-editor/internal/docsync"
	httpHandler "collaborative-editor/internal/handler/http"
	wsHandler "collaborative-editor/internal/handler/websocket"
	"collaborative-editor/internal/hub"
	gormpersistence "collaborative-editor/internal/infra/persistence/gorm"
	"collaborative-editor/internal/infra/setup"
	redisstate "collaborative-editor/internal/infra/state/redis"
	"collaborative-editor/internal/service"
	"collaborative-editor/internal/tasks"
	"collaborative-editor/internal/worker"
)

// 实例存活标记的 TTL，心跳间隔为其三分之一
const instanceHeartbeatTTL = 30 * time.Second

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	InstanceID  string
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	Documents   *docsync.Registry
	HttpServer  *http.Server

	presence      *service.PresenceService
	stopHeartbeat context.CancelFunc
	heartbeatDone sync.WaitGroup
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := newLogger(cfg)
	log.Info("Configuration loaded successfully")

	// 本进程的实例 ID，用作 socket ID 前缀和文档租约持有者
	instanceID := strings.ToLower(ulid.Make().String())
	log.WithField("instance_id", instanceID).Info("Instance ID assigned")

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	log.Info("Database initialized")

	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Asynq client initialized")

	// 4. 初始化 Repositories
	userRepo := gormpersistence.NewGormUserRepository(db)
	roomRepo := gormpersistence.NewGormRoomRepository(db)
	memberRepo := gormpersistence.NewGormMemberRepository(db)
	chatRepo := gormpersistence.NewGormChatRepository(db)
	stateRepo := redisstate.NewRedisStateRepository(redisClient, cfg.KeyPrefix)
	log.Info("Repositories initialized")

	// 5. 初始化 Services
	identityService, err := service.NewIdentityService(userRepo, cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create IdentityService: %w", err)
	}
	roomService := service.NewRoomService(roomRepo, memberRepo, chatRepo, cfg.RoomTTL)
	versionService := service.NewVersionService(roomRepo)
	presenceService := service.NewPresenceService(roomRepo, memberRepo, stateRepo, service.DefaultCursorTTL)
	documentService := service.NewDocumentService(roomRepo)
	log.Info("Services initialized")

	// 6. 初始化 Hub 与文档注册表
	registry := docsync.NewRegistry(documentService, stateRepo, docsync.Options{
		InstanceID:    instanceID,
		FlushDebounce: cfg.DocFlushDebounce,
		FlushRetry:    cfg.DocFlushRetry,
		LeaseTTL:      cfg.DocLeaseTTL,
		StoreTimeout:  cfg.StoreTimeout,
	})
	hubInstance := hub.NewHub(hub.Services{
		Presence: presenceService,
		Version:  versionService,
		Rooms:    roomService,
		Access:   registry,
	}, cfg.StoreTimeout)
	log.Info("Hub and document registry initialized")

	// 7. 初始化 Handlers
	wsOpts := wsHandler.Options{
		InstanceID:        instanceID,
		MessagesPerSecond: cfg.WSMessagesPerSec,
	}
	if cfg.IsProduction() {
		wsOpts.AllowedOrigins = []string{cfg.CORSAllowedOrigin}
	}
	routes := Routes{
		Auth:     httpHandler.NewAuthHandler(identityService),
		Rooms:    httpHandler.NewRoomHandler(roomService, versionService, hubInstance),
		RoomWS:   wsHandler.NewWebSocketHandler(hubInstance, identityService, wsOpts),
		DocWS:    wsHandler.NewDocHandler(identityService, documentService, presenceService, registry, hubInstance, wsOpts),
		Verifier: identityService,
		Redis:    redisClient,
	}
	log.Info("Handlers initialized")

	// 8. 初始化 Worker Server
	live := func(socketID string) bool {
		return hubInstance.IsLive(socketID) || registry.IsLive(socketID)
	}
	workerServer, err := worker.NewWorkerServer(redisClientOpt, instanceID, worker.Handlers{
		Sweep:     worker.NewRoomSweepHandler(roomService),
		Reconcile: worker.NewPresenceReconcileHandler(presenceService, instanceID, live),
	}, worker.Schedule{
		Sweep:     "@every 1h",
		Reconcile: "@every 1m",
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker server: %w", err)
	}
	log.Info("Worker server initialized")

	// 9. 初始化 Gin Engine 和路由
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := NewRouter(cfg, log, routes)
	log.Info("Router setup complete")

	// 10. 初始化 HTTP Server
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	app := &App{
		Config:      cfg,
		Log:         log,
		InstanceID:  instanceID,
		DB:          db,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		AsynqServer: workerServer,
		Hub:         hubInstance,
		Documents:   registry,
		HttpServer:  httpServer,
		presence:    presenceService,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

func newLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // cfg.LogLevel 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	// 各包通过 logrus 标准 logger 记录日志，保持同样的格式和级别
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(logLevel)
	logrus.SetOutput(os.Stdout)
	log.Infof("Logger initialized (Level: %s, Format: %T)", logLevel.String(), log.Formatter)
	return log
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() error {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()

	// 先写入一次存活标记，再启动周期心跳
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.StoreTimeout)
	err := a.presence.Heartbeat(ctx, a.InstanceID, instanceHeartbeatTTL)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to write instance heartbeat: %w", err)
	}
	a.startHeartbeat()

	if err := a.AsynqServer.Start(); err != nil {
		return err
	}
	a.enqueueBootReconcile()

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
	return nil
}

func (a *App) startHeartbeat() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopHeartbeat = cancel
	a.heartbeatDone.Add(1)
	go func() {
		defer a.heartbeatDone.Done()
		ticker := time.NewTicker(instanceHeartbeatTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, a.Config.StoreTimeout)
				if err := a.presence.Heartbeat(hbCtx, a.InstanceID, instanceHeartbeatTTL); err != nil {
					a.Log.WithError(err).Warn("Instance heartbeat failed")
				}
				hbCancel()
			}
		}
	}()
}

// enqueueBootReconcile 启动时对账一次，清理已停止实例遗留的活跃标记
func (a *App) enqueueBootReconcile() {
	task, err := tasks.NewPresenceReconcileTask(a.InstanceID)
	if err != nil {
		a.Log.WithError(err).Error("Failed to create boot reconcile task")
		return
	}
	info, err := a.AsynqClient.Enqueue(task)
	if err != nil {
		a.Log.WithError(err).Warn("Failed to enqueue boot reconcile task")
		return
	}
	a.Log.WithField("task_id", info.ID).Info("Boot reconcile task enqueued")
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 停止接受新的 HTTP 请求与握手
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 2. 写回所有文档并释放租约，随后停止 Hub
	if a.Documents != nil {
		a.Documents.Close()
	}
	if a.Hub != nil {
		a.Hub.Stop()
	}

	// 3. 停止心跳
	if a.stopHeartbeat != nil {
		a.stopHeartbeat()
		a.heartbeatDone.Wait()
	}

	// 4. 优雅关闭 Worker Server
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 5. 关闭 Asynq Client
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		} else {
			a.Log.Info("Asynq client closed.")
		}
	}

	// 6. 关闭 Redis 连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}

	// 7. 关闭数据库连接池
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			}
		}
	}

	a.Log.Info("Application shutdown complete.")
}
