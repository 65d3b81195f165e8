package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskManifestWarmup precomputes permission manifests for active users.
	TaskManifestWarmup = "authz:manifest_warmup"
)

// ManifestWarmupPayload selects which users to warm.
type ManifestWarmupPayload struct {
	Scope string `json:"scope"`
}

// NewManifestWarmupTask constructs an Asynq task.
func NewManifestWarmupTask(payload ManifestWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskManifestWarmup, data), nil
}
