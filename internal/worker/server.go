package worker

import (
	"context"
	"fmt"
	"time"

	"collaborative-editor/internal/tasks"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Handlers Worker 需要的任务处理器
type Handlers struct {
	Sweep     *RoomSweepHandler
	Reconcile *PresenceReconcileHandler
}

// WorkerServer 封装了 Asynq Worker Server 与 Scheduler 的启动和关闭逻辑
type WorkerServer struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	handlers  Handlers
	log       *logrus.Entry
}

// Schedule 周期任务的 cron 表达式
type Schedule struct {
	Sweep     string // 例如 "@every 1h"
	Reconcile string // 例如 "@every 1m"
}

// NewWorkerServer 创建一个新的 WorkerServer 实例。
// instanceID 决定本实例消费的对账队列。
func NewWorkerServer(redisOpt asynq.RedisClientOpt, instanceID string, handlers Handlers, schedule Schedule, logger *logrus.Logger) (*WorkerServer, error) {
	if handlers.Sweep == nil || handlers.Reconcile == nil {
		panic("handlers cannot be nil for WorkerServer")
	}
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				tasks.PresenceQueue(instanceID): 6,
				tasks.QueueDefault:              3,
				tasks.QueueLow:                  1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskLogger(ctx, task).WithError(err).Error("Task failed")
			}),
			Logger:   logEntry,
			LogLevel: asynq.WarnLevel,
		},
	)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: logEntry, LogLevel: asynq.WarnLevel})
	if schedule.Sweep != "" {
		if _, err := scheduler.Register(schedule.Sweep, tasks.NewRoomExpireSweepTask(time.Hour)); err != nil {
			return nil, err
		}
	}
	if schedule.Reconcile != "" {
		task, err := tasks.NewPresenceReconcileTask(instanceID)
		if err != nil {
			return nil, err
		}
		if _, err := scheduler.Register(schedule.Reconcile, task); err != nil {
			return nil, err
		}
	}

	return &WorkerServer{
		server:    server,
		scheduler: scheduler,
		handlers:  handlers,
		log:       logEntry,
	}, nil
}

// NewServeMux 注册所有任务处理器
func (ws *WorkerServer) NewServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeRoomExpireSweep, ws.handlers.Sweep.ProcessTask)
	mux.HandleFunc(tasks.TypePresenceReconcile, ws.handlers.Reconcile.ProcessTask)
	return mux
}

// Start 启动 Scheduler 与 Worker Server，不阻塞。
// 进程信号由 bootstrap 统一处理，这里不使用 server.Run。
func (ws *WorkerServer) Start() error {
	if err := ws.server.Start(ws.NewServeMux()); err != nil {
		return fmt.Errorf("start worker server: %w", err)
	}
	if err := ws.scheduler.Start(); err != nil {
		ws.server.Shutdown()
		return fmt.Errorf("start task scheduler: %w", err)
	}
	ws.log.Info("Worker server started")
	return nil
}

// Shutdown 优雅地关闭 Scheduler 与 Worker Server
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.scheduler.Shutdown()
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}
