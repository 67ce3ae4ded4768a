package authz

import (
	"context"

	"github.com/sirupsen/logrus"
)

// AuditLogger emits one structured record per policy decision. Denials log
// at warn level so operators can spot probing; allows stay at debug.
type AuditLogger struct {
	log *logrus.Logger
}

// NewAuditLogger wraps a logrus logger. Passing nil uses the standard logger.
func NewAuditLogger(log *logrus.Logger) *AuditLogger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AuditLogger{log: log}
}

// Record logs the outcome of one policy decision.
func (a *AuditLogger) Record(_ context.Context, p Principal, table Table, op Operation, d Decision, err error) {
	entry := a.log.WithFields(logrus.Fields{
		"principal": p.String(),
		"table":     string(table),
		"operation": string(op),
		"allowed":   d.Allowed,
	})
	if d.Rule != "" {
		entry = entry.WithField("rule", d.Rule)
	}
	switch {
	case err != nil:
		entry.WithError(err).Error("authorization check failed")
	case d.Allowed:
		entry.Debug("authorized")
	default:
		entry.Warn("denied")
	}
}
