// Package storage persists resolver activity as JSON lines.
package storage

import (
	"time"

	"github.com/google/uuid"
)

const (
	KindResolution = "resolution"
	KindSettings   = "settings"
)

// AuditRecord is one line of the audit log.
type AuditRecord struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Kind       string    `json:"kind"`
	TabID      string    `json:"tab_id,omitempty"`
	RequestURL string    `json:"request_url,omitempty"`
	Name       string    `json:"name,omitempty"`
	Source     string    `json:"source,omitempty"`
	Target     string    `json:"target,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// AuditLog appends AuditRecords under dir/YYYY-MM-DD/audit/slashd.jsonl.
type AuditLog struct {
	w *JSONLWriter
}

func NewAuditLog(dir string, bufferSize, maxSizeMB int) *AuditLog {
	return &AuditLog{w: NewJSONLWriter(dir, "audit", bufferSize, maxSizeMB, "slashd")}
}

// Append stamps rec with an ID and time when missing and queues it.
func (a *AuditLog) Append(rec AuditRecord) (AuditRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	return rec, a.w.Write(rec)
}

func (a *AuditLog) Dropped() int64 {
	return a.w.Dropped()
}

func (a *AuditLog) Close() error {
	return a.w.Close()
}
