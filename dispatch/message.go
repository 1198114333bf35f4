package dispatch

import (
	"strings"

	"github.com/goliatone/go-transcript-intake/core"

	job "github.com/goliatone/go-job"
)

const (
	ParamStoragePath = "storage_path"
	ParamProjectName = "project_name"
	ParamModel       = "model"

	// DedupPolicyDrop discards a message whose idempotency key is already queued.
	DedupPolicyDrop = "drop"
)

// IdempotencyKey identifies the analysis of one artifact path. Re-deliveries
// resolve to the same key.
func IdempotencyKey(storagePath string) string {
	return "transcript:" + strings.TrimSpace(storagePath)
}

// ToExecutionMessage maps a trigger onto the go-job execution contract.
func ToExecutionMessage(trigger core.ProcessingJobTrigger) *job.ExecutionMessage {
	params := map[string]any{
		ParamStoragePath: strings.TrimSpace(trigger.StoragePath),
		ParamProjectName: strings.TrimSpace(trigger.ProjectName),
	}
	if model := strings.TrimSpace(trigger.Model); model != "" {
		params[ParamModel] = model
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(trigger.Template),
		ScriptPath:     strings.TrimSpace(trigger.Template),
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(trigger.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(DedupPolicyDrop),
	}
}

// FromExecutionMessage recovers the trigger fields carried by msg.
func FromExecutionMessage(msg *job.ExecutionMessage) core.ProcessingJobTrigger {
	if msg == nil {
		return core.ProcessingJobTrigger{}
	}
	return core.ProcessingJobTrigger{
		Template:       strings.TrimSpace(msg.JobID),
		StoragePath:    stringParam(msg.Parameters, ParamStoragePath),
		ProjectName:    stringParam(msg.Parameters, ParamProjectName),
		Model:          stringParam(msg.Parameters, ParamModel),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
	}
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
