package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"collaborative-editor/internal/tasks"

	"github.com/hibiken/asynq"
)

// PresenceReconciler 把已断开连接留下的活跃条目置为不活跃
type PresenceReconciler interface {
	Reconcile(ctx context.Context, instanceID string, live func(socketID string) bool) (int, error)
}

// PresenceReconcileHandler 处理本实例的对账任务
type PresenceReconcileHandler struct {
	reconciler PresenceReconciler
	instanceID string
	live       func(socketID string) bool
}

// NewPresenceReconcileHandler 创建 Handler 实例。
// live 判断本实例上的 socket 是否仍然连接。
func NewPresenceReconcileHandler(reconciler PresenceReconciler, instanceID string, live func(socketID string) bool) *PresenceReconcileHandler {
	if reconciler == nil || live == nil {
		panic("dependencies cannot be nil for PresenceReconcileHandler")
	}
	return &PresenceReconcileHandler{reconciler: reconciler, instanceID: instanceID, live: live}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *PresenceReconcileHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	var payload tasks.PresenceReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.InstanceID != h.instanceID {
		// 上一个进程留下的任务，它的 socket 由心跳过期来清理
		logCtx.WithField("instance_id", payload.InstanceID).Info("Skipping reconcile task for another instance")
		return nil
	}

	n, err := h.reconciler.Reconcile(ctx, h.instanceID, h.live)
	if err != nil {
		logCtx.WithError(err).Error("Presence reconcile failed")
		return fmt.Errorf("reconcile presence: %w", err)
	}
	if n > 0 {
		logCtx.WithField("deactivated", n).Info("Presence reconcile deactivated stale members")
	} else {
		logCtx.Debug("Presence reconcile found nothing to do")
	}
	return nil
}
