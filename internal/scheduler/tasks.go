package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskReconcilePipeline = "routing.reconcile_pipeline"

type ReconcilePipelinePayload struct {
	PipelineID string `json:"pipelineId"`
}

func NewReconcilePipelineTask(payload ReconcilePipelinePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcilePipeline, data), nil
}

func ParseReconcilePipelinePayload(task *asynq.Task) (ReconcilePipelinePayload, error) {
	var payload ReconcilePipelinePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReconcilePipelinePayload{}, err
	}
	return payload, nil
}
