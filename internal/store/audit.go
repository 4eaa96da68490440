package store

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/facilitymap/changedetect/pkg/errors"
	"github.com/facilitymap/changedetect/pkg/facilities"
)

// TaskLog is one audit row recording a pipeline phase.
type TaskLog struct {
	ID      uint      `gorm:"column:id;primaryKey;autoIncrement"`
	RunID   string    `gorm:"column:run_id"`
	LogDate time.Time `gorm:"column:log_date"`
	Task    string    `gorm:"column:task"`
	Level   string    `gorm:"column:level"`
	Comment string    `gorm:"column:comment"`
}

// TableName implements gorm's table naming.
func (TaskLog) TableName() string { return "task_logs" }

// resultLog persists a RunSummary under its audit table name.
type resultLog struct {
	facilities.RunSummary
}

func (resultLog) TableName() string { return "result_logs" }

// GormAudit writes audit rows to the facilities database.
type GormAudit struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormAudit returns an audit sink writing through db.
func NewGormAudit(db *gorm.DB) *GormAudit {
	return &GormAudit{db: db, now: time.Now}
}

// LogTask implements TaskLogger.
func (a *GormAudit) LogTask(ctx context.Context, runID, task, level, comment string) error {
	row := TaskLog{
		RunID:   runID,
		LogDate: a.now().UTC(),
		Task:    task,
		Level:   level,
		Comment: comment,
	}
	if err := a.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.WrapIO("audit log", "task log", err)
	}
	return nil
}

// LogResult implements TaskLogger.
func (a *GormAudit) LogResult(ctx context.Context, summary facilities.RunSummary) error {
	if err := a.db.WithContext(ctx).Create(&resultLog{RunSummary: summary}).Error; err != nil {
		return errors.WrapIO("audit log", "result log", err)
	}
	return nil
}

// MemoryAudit collects audit rows in memory, for tests and dry runs.
type MemoryAudit struct {
	mu      sync.Mutex
	Tasks   []TaskLog
	Results []facilities.RunSummary
}

// NewMemoryAudit returns an empty in-memory audit sink.
func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{}
}

// LogTask implements TaskLogger.
func (a *MemoryAudit) LogTask(ctx context.Context, runID, task, level, comment string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Tasks = append(a.Tasks, TaskLog{
		RunID:   runID,
		LogDate: time.Now().UTC(),
		Task:    task,
		Level:   level,
		Comment: comment,
	})
	return nil
}

// LogResult implements TaskLogger.
func (a *MemoryAudit) LogResult(ctx context.Context, summary facilities.RunSummary) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Results = append(a.Results, summary)
	return nil
}

// TaskNames returns the recorded task names in order.
func (a *MemoryAudit) TaskNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, len(a.Tasks))
	for i, task := range a.Tasks {
		names[i] = task.Task
	}
	return names
}
