package roleAuth

import (
	"context"
)

// emitAudit fills in the request IP and error code and hands ev to the
// dispatcher. The dispatcher stamps id and timestamp.
func (e *Engine) emitAudit(ctx context.Context, ev AuditEvent, err error) {
	if e == nil || e.audit == nil {
		return
	}
	if ev.IP == "" {
		ev.IP = clientIPFromContext(ctx)
	}
	if err != nil && ev.Error == "" {
		ev.Error, _ = Classify(err)
	}
	e.audit.Emit(ctx, ev)
}
