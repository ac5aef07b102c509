package swarm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/swarmbot/event-gateway/internal/platform/github"
	"github.com/swarmbot/event-gateway/internal/platform/logger"
)

const (
	// JobWorkflowFile is the workflow that executes jobs. The job-scoped
	// status view is pinned to it; the swarm view deliberately is not.
	JobWorkflowFile = "run-job.yml"

	// BranchPrefix correlates workflow runs to jobs. There is no persisted
	// mapping; the branch name is the whole contract.
	BranchPrefix = "job/"
)

// Service owns job creation and status aggregation on top of the Actions API.
type Service struct {
	log *logger.Logger
	gh  github.Client
}

func NewService(log *logger.Logger, gh github.Client) *Service {
	return &Service{log: log.With("service", "SwarmService"), gh: gh}
}

// ExtractJobID strips the job branch prefix: "job/abc123" -> ("abc123", true).
func ExtractJobID(branch string) (string, bool) {
	if !strings.HasPrefix(branch, BranchPrefix) {
		return "", false
	}
	return branch[len(BranchPrefix):], true
}

type CreatedJob struct {
	JobID  string `json:"job_id"`
	Branch string `json:"branch"`
}

// CreateJob assigns a fresh job id and dispatches the job workflow with the
// description as input. The runner creates the job/<id> branch; the gateway
// only triggers and reports.
func (s *Service) CreateJob(ctx context.Context, description string) (*CreatedJob, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("swarm: empty job description")
	}

	jobID := uuid.NewString()
	inputs := map[string]string{
		"job_id": jobID,
		"job":    description,
	}
	if err := s.gh.DispatchWorkflow(ctx, JobWorkflowFile, "main", inputs); err != nil {
		return nil, fmt.Errorf("swarm: dispatch job workflow: %w", err)
	}

	s.log.Info("Job created", "job_id", jobID)
	return &CreatedJob{JobID: jobID, Branch: BranchPrefix + jobID}, nil
}
