package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ragcore/ragcore/internal/domain"
)

const executionTTL = time.Hour

// ExecutionMirror is the subset of redis.Cmdable the orchestrator needs to
// make a WorkflowExecution's progress visible across processes while it
// runs. The in-process map stays authoritative; this is a cache, not a
// system of record.
type ExecutionMirror interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

func executionKey(id string) string {
	return "ragcore:workflow_execution:" + id
}

func mirrorExecution(ctx context.Context, mirror ExecutionMirror, exec domain.WorkflowExecution) {
	if mirror == nil {
		return
	}
	data, err := json.Marshal(exec)
	if err != nil {
		return
	}
	// Best-effort: a mirror write failing never fails the workflow run,
	// it only degrades cross-process visibility into its progress.
	mirror.Set(ctx, executionKey(exec.ID), data, executionTTL)
}

// LoadExecution reads a mirrored WorkflowExecution, returning ok=false if
// it isn't present (never started, evicted, or mirror unavailable).
func LoadExecution(ctx context.Context, mirror ExecutionMirror, id string) (domain.WorkflowExecution, bool) {
	if mirror == nil {
		return domain.WorkflowExecution{}, false
	}
	raw, err := mirror.Get(ctx, executionKey(id)).Bytes()
	if err != nil {
		return domain.WorkflowExecution{}, false
	}
	var exec domain.WorkflowExecution
	if err := json.Unmarshal(raw, &exec); err != nil {
		return domain.WorkflowExecution{}, false
	}
	return exec, true
}
