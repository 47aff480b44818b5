// Package tasks defines the structure for tasks that are sent to the processing queue.
package tasks

import "context"

// UnitProcessingTask 请求对一个单元执行一次摄入流程。
type UnitProcessingTask struct {
	UnitID      uint   `json:"unit_id"`
	RequestedBy uint   `json:"requested_by"`
	Reason      string `json:"reason"`
}

// 任务来源。
const (
	ReasonUpload  = "upload"
	ReasonManual  = "manual"
	ReasonRequeue = "requeue"
)

// Publisher 把任务投递到队列，Kafka 生产者和本地队列都实现了该接口。
type Publisher interface {
	Publish(ctx context.Context, task UnitProcessingTask) error
}

// Processor 消费一个任务。
type Processor interface {
	Process(ctx context.Context, task UnitProcessingTask) error
}
