// Package tasks 定义后台任务的类型与载荷。
package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// 定义任务类型常量
const (
	TypeRoomExpireSweep   = "room:expire_sweep"  // 删除过期房间
	TypePresenceReconcile = "presence:reconcile" // 清理已断开连接留下的活跃条目
)

// 队列名
const (
	QueueDefault = "default"
	QueueLow     = "low"
)

// PresenceQueue 每个进程实例有自己的对账队列，任务只会被该实例消费，
// 因为只有它知道自己的哪些 socket 还活着。
func PresenceQueue(instanceID string) string {
	return "presence-" + instanceID
}

// PresenceReconcilePayload 对账任务的载荷
type PresenceReconcilePayload struct {
	InstanceID string `json:"instance_id"`
}

// NewRoomExpireSweepTask 创建过期房间清理任务。同一时间窗口内只保留一个。
func NewRoomExpireSweepTask(window time.Duration) *asynq.Task {
	return asynq.NewTask(TypeRoomExpireSweep, nil,
		asynq.Queue(QueueLow),
		asynq.Unique(window),
		asynq.MaxRetry(3),
	)
}

// NewPresenceReconcileTask 创建对账任务，投递到实例自己的队列
func NewPresenceReconcileTask(instanceID string) (*asynq.Task, error) {
	payload, err := json.Marshal(PresenceReconcilePayload{InstanceID: instanceID})
	if err != nil {
		return nil, fmt.Errorf("marshal reconcile payload: %w", err)
	}
	return asynq.NewTask(TypePresenceReconcile, payload,
		asynq.Queue(PresenceQueue(instanceID)),
		asynq.MaxRetry(1),
		asynq.Timeout(time.Minute),
	), nil
}
