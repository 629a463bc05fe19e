package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// RoomSweeper 删除过期房间
type RoomSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// RoomSweepHandler 处理周期性的过期房间清理任务
type RoomSweepHandler struct {
	sweeper RoomSweeper
}

// NewRoomSweepHandler 创建 Handler 实例
func NewRoomSweepHandler(sweeper RoomSweeper) *RoomSweepHandler {
	if sweeper == nil {
		panic("RoomSweeper cannot be nil for RoomSweepHandler")
	}
	return &RoomSweepHandler{sweeper: sweeper}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *RoomSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)
	logCtx.Info("Processing room expire sweep task...")

	n, err := h.sweeper.SweepExpired(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Room expire sweep failed")
		return fmt.Errorf("sweep expired rooms: %w", err)
	}

	logCtx.WithField("deleted", n).Info("Room expire sweep task processed successfully")
	return nil
}

// taskLogger 带上任务 ID、类型与重试次数
func taskLogger(ctx context.Context, t *asynq.Task) *logrus.Entry {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	queue, _ := asynq.GetQueueName(ctx)
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"queue":     queue,
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})
}
