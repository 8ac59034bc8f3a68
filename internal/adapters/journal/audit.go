package journal

import (
	"path/filepath"

	"github.com/suhail953/wattflow/internal/domain"
	"github.com/suhail953/wattflow/internal/ports"
)

// AuditLog is the data audit stream: logs/data/data-<date>.json.
type AuditLog struct {
	file *DailyFile
}

func NewAuditLog(logDir string) *AuditLog {
	return &AuditLog{file: NewDailyFile(filepath.Join(logDir, "data"), "data-")}
}

func (a *AuditLog) Append(env domain.AuditEnvelope) error {
	return a.file.Append(env)
}

func (a *AuditLog) SizeBytes() int64 { return a.file.SizeBytes() }

func (a *AuditLog) Close() error { return a.file.Close() }

var _ ports.AuditSink = (*AuditLog)(nil)
