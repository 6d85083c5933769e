package store

import (
	"encoding/json"
	"strings"
	"time"
)

// ProjectStatus represents the lifecycle of a project.
type ProjectStatus string

const (
	ProjectIdle    ProjectStatus = "idle"
	ProjectPending ProjectStatus = "pending"
	ProjectRunning ProjectStatus = "running"
	ProjectDone    ProjectStatus = "done"
	ProjectError   ProjectStatus = "error"

	// ProjectDeleted is a legacy tombstone value still found in old stores.
	// New code never writes it; listings filter it unless asked not to.
	ProjectDeleted ProjectStatus = "deleted"
)

var projectStatusSet = map[ProjectStatus]struct{}{
	ProjectIdle:    {},
	ProjectPending: {},
	ProjectRunning: {},
	ProjectDone:    {},
	ProjectError:   {},
	ProjectDeleted: {},
}

// ParseProjectStatus converts a string into a known ProjectStatus.
func ParseProjectStatus(value string) (ProjectStatus, bool) {
	normalized := ProjectStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := projectStatusSet[normalized]
	return normalized, ok
}

// RunStatus represents the lifecycle of a run row.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunError   RunStatus = "error"
)

// FindingStatus represents the lifecycle of a QA finding.
type FindingStatus string

const (
	FindingOpen     FindingStatus = "open"
	FindingResolved FindingStatus = "resolved"
)

// Series groups projects that belong to the same book series.
type Series struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project is one translation job with its file paths and queue state.
type Project struct {
	ID                  int64
	Name                string
	SeriesID            *int64
	SeriesName          string
	VolumeNo            *float64
	InputEPUB           string
	OutputTranslateEPUB string
	OutputEditEPUB      string
	PromptTranslate     string
	PromptEdit          string
	GlossaryPath        string
	CacheTranslatePath  string
	CacheEditPath       string
	SourceLang          string
	TargetLang          string
	ActiveStep          string
	Status              ProjectStatus
	Notes               string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ProjectFields carries the optional columns accepted at project creation.
type ProjectFields struct {
	SeriesID            *int64
	VolumeNo            *float64
	InputEPUB           string
	OutputTranslateEPUB string
	OutputEditEPUB      string
	PromptTranslate     string
	PromptEdit          string
	GlossaryPath        string
	CacheTranslatePath  string
	CacheEditPath       string
	SourceLang          string
	TargetLang          string
	ActiveStep          string
	Notes               string
}

// Run is the execution record of one processing-step invocation against a
// project.
type Run struct {
	ID         int64
	ProjectID  int64
	Step       string
	Command    string
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	Message    string
}

// QAFinding is one issue reported by a QA pass over a project step.
type QAFinding struct {
	ID           int64
	ProjectID    int64
	Step         string
	ChapterPath  string
	SegmentIndex int
	SegmentID    string
	Severity     string
	RuleCode     string
	Message      string
	Status       FindingStatus
	CreatedAt    time.Time
}

// ProjectStageSummary is a project row decorated with its most recent run and
// open QA-finding count, for dashboard-style listings.
type ProjectStageSummary struct {
	Project
	LastRunStep   string
	LastRunStatus RunStatus
	OpenFindings  int
}

// MigrationRecord documents one schema transition, forward or reverse.
type MigrationRecord struct {
	ID         int64     `json:"id"`
	FromSchema int       `json:"from_schema"`
	ToSchema   int       `json:"to_schema"`
	BackupDir  string    `json:"backup_dir,omitempty"`
	AppliedAt  time.Time `json:"applied_at"`
}

// ChangeLogEntry is one best-effort diagnostic record of a store mutation.
type ChangeLogEntry struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityKey  string          `json:"entity_key"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// MigrationSummary describes the span of one migration run.
type MigrationSummary struct {
	FromSchema int    `json:"from_schema"`
	ToSchema   int    `json:"to_schema"`
	BackupDir  string `json:"backup_dir,omitempty"`
}

// MigrationReport bundles recent migration history and change-log entries
// for operator review.
type MigrationReport struct {
	GeneratedAt   time.Time         `json:"generated_at"`
	SchemaVersion int               `json:"schema_version"`
	History       []MigrationRecord `json:"history"`
	ChangeLog     []ChangeLogEntry  `json:"change_log"`
}
