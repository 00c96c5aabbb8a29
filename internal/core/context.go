package core

import "context"

type contextKey string

const ctxKeyTrigger contextKey = "ingest_trigger"

// Trigger sources.
const (
	TriggerCLI   = "cli"
	TriggerAPI   = "api"
	TriggerInbox = "inbox"
)

// Trigger records what started a file run. It is logged with the run and
// carried on its JobEvent.
type Trigger struct {
	Source   string `json:"source"`
	ClientIP string `json:"clientIp,omitempty"`
}

// ContextWithTrigger attaches t to ctx.
func ContextWithTrigger(ctx context.Context, t Trigger) context.Context {
	return context.WithValue(ctx, ctxKeyTrigger, t)
}

// TriggerFromContext returns the trigger on ctx. Runs without one are
// reported as CLI runs.
func TriggerFromContext(ctx context.Context) Trigger {
	if t, ok := ctx.Value(ctxKeyTrigger).(Trigger); ok {
		return t
	}
	return Trigger{Source: TriggerCLI}
}
