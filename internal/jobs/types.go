package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/dvloznov/cashflow-engine/internal/engine"
)

var (
	// ErrJobNotFound is returned by a JobStore for an unknown job id.
	ErrJobNotFound = errors.New("job not found")
	// ErrQueueClosed is returned when publishing to or starting a stopped queue.
	ErrQueueClosed = errors.New("queue is closed")
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeAnalyzePlan represents a full plan analysis job.
	JobTypeAnalyzePlan JobType = "analyze_plan"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// AnalyzePlanJob asks a worker to load a plan and run the analysis pipeline over it.
type AnalyzePlanJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// PlanURI locates the plan document (local path or gs:// URI). Ignored when Plan is set.
	PlanURI string `json:"plan_uri,omitempty"`

	// Plan is an inline plan submitted with the request.
	Plan *domain.Plan `json:"-"`

	// PeriodID and AsOf are passed to the engine; zero values use the plan's settings.
	PeriodID int    `json:"period_id,omitempty"`
	AsOf     string `json:"as_of,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`

	// Result holds the analysis once the job has completed.
	Result *engine.Analysis `json:"result,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *AnalyzePlanJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *AnalyzePlanJob) GetType() JobType {
	return JobTypeAnalyzePlan
}

// GetStatus implements the Job interface.
func (j *AnalyzePlanJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishAnalyzePlan publishes a plan analysis job.
	PublishAnalyzePlan(ctx context.Context, job *AnalyzePlanJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *AnalyzePlanJob) error

	// GetJob retrieves a job by ID. Unknown ids return ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*AnalyzePlanJob, error)

	// ListJobs retrieves jobs with optional filtering, oldest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*AnalyzePlanJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// PlanURI filters jobs by plan location.
	PlanURI string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
