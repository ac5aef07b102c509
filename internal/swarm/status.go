package swarm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/swarmbot/event-gateway/internal/platform/github"
)

const swarmPageSize = 25

// Job is the job-scoped view of one active workflow run.
type Job struct {
	JobID           string    `json:"job_id"`
	Branch          string    `json:"branch"`
	Status          string    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	DurationMinutes int       `json:"duration_minutes"`
	CurrentStep     *string   `json:"current_step"`
	StepsCompleted  int       `json:"steps_completed"`
	StepsTotal      int       `json:"steps_total"`
	RunID           int64     `json:"run_id"`
}

type JobStatus struct {
	Jobs    []Job `json:"jobs"`
	Queued  int   `json:"queued"`
	Running int   `json:"running"`
}

// RunSummary is one row of the swarm-wide view.
type RunSummary struct {
	RunID           int64     `json:"run_id"`
	Branch          string    `json:"branch"`
	Status          string    `json:"status"`
	Conclusion      string    `json:"conclusion,omitempty"`
	WorkflowName    string    `json:"workflow_name"`
	StartedAt       time.Time `json:"started_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	DurationSeconds int64     `json:"duration_seconds,omitempty"`
	HTMLURL         string    `json:"html_url"`
}

type SwarmCounts struct {
	Running int `json:"running"`
	Queued  int `json:"queued"`
}

type SwarmView struct {
	Runs    []RunSummary `json:"runs"`
	HasMore bool         `json:"hasMore"`
	Counts  SwarmCounts  `json:"counts"`
}

// Status returns active jobs, scoped to the job workflow and job/* branches.
// The two status-filtered run lists are fetched in parallel; per-run step
// detail is best-effort so one run's failed lookup never fails the rest.
func (s *Service) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	var inProgress, queued *github.RunList

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		inProgress, err = s.gh.ListRuns(gctx, github.ListRunsOptions{
			Status:   github.StatusInProgress,
			Workflow: JobWorkflowFile,
		})
		return err
	})
	g.Go(func() error {
		var err error
		queued, err = s.gh.ListRuns(gctx, github.ListRunsOptions{
			Status:   github.StatusQueued,
			Workflow: JobWorkflowFile,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	allRuns := append(append([]github.WorkflowRun{}, inProgress.WorkflowRuns...), queued.WorkflowRuns...)

	var filtered []github.WorkflowRun
	for _, run := range allRuns {
		id, ok := ExtractJobID(run.HeadBranch)
		if !ok {
			continue
		}
		if jobID != "" && id != jobID {
			continue
		}
		filtered = append(filtered, run)
	}

	jobs := make([]Job, len(filtered))
	var wg sync.WaitGroup
	for i, run := range filtered {
		id, _ := ExtractJobID(run.HeadBranch)
		jobs[i] = Job{
			JobID:           id,
			Branch:          run.HeadBranch,
			Status:          run.Status,
			StartedAt:       run.CreatedAt,
			DurationMinutes: int(time.Since(run.CreatedAt).Round(time.Minute) / time.Minute),
			RunID:           run.ID,
		}

		wg.Add(1)
		go func(i int, runID int64) {
			defer wg.Done()
			detail, err := s.gh.ListRunJobs(ctx, runID)
			if err != nil {
				// The jobs endpoint fails for runs that have not started;
				// degrade to empty step fields for this run only.
				s.log.Debug("Step detail unavailable", "run_id", runID, "error", err.Error())
				return
			}
			if len(detail.Jobs) == 0 {
				return
			}
			first := detail.Jobs[0]
			jobs[i].StepsTotal = len(first.Steps)
			for _, step := range first.Steps {
				switch step.Status {
				case github.StatusCompleted:
					jobs[i].StepsCompleted++
				case github.StatusInProgress:
					if jobs[i].CurrentStep == nil {
						name := step.Name
						jobs[i].CurrentStep = &name
					}
				}
			}
		}(i, run.ID)
	}
	wg.Wait()

	// Counts come from the filtered job list, never the upstream totals:
	// those include runs from unrelated workflows and branches.
	status := &JobStatus{Jobs: jobs}
	for _, j := range jobs {
		switch j.Status {
		case github.StatusInProgress:
			status.Running++
		case github.StatusQueued:
			status.Queued++
		}
	}
	return status, nil
}

// SwarmStatus returns one unfiltered page of all workflow runs plus global
// running/queued counts. The count queries fetch a single item each purely to
// read the upstream total.
func (s *Service) SwarmStatus(ctx context.Context, page int) (*SwarmView, error) {
	if page <= 0 {
		page = 1
	}

	var running, queued, all *github.RunList
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		running, err = s.gh.ListRuns(gctx, github.ListRunsOptions{Status: github.StatusInProgress, PerPage: 1})
		return err
	})
	g.Go(func() error {
		var err error
		queued, err = s.gh.ListRuns(gctx, github.ListRunsOptions{Status: github.StatusQueued, PerPage: 1})
		return err
	})
	g.Go(func() error {
		var err error
		all, err = s.gh.ListRuns(gctx, github.ListRunsOptions{Page: page, PerPage: swarmPageSize})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	runs := make([]RunSummary, 0, len(all.WorkflowRuns))
	for _, run := range all.WorkflowRuns {
		summary := RunSummary{
			RunID:        run.ID,
			Branch:       run.HeadBranch,
			Status:       run.Status,
			Conclusion:   run.Conclusion,
			WorkflowName: run.WorkflowName,
			StartedAt:    run.CreatedAt,
			UpdatedAt:    run.UpdatedAt,
			HTMLURL:      run.HTMLURL,
		}
		if run.Status != github.StatusCompleted {
			summary.DurationSeconds = int64(time.Since(run.CreatedAt).Round(time.Second) / time.Second)
		}
		runs = append(runs, summary)
	}

	return &SwarmView{
		Runs:    runs,
		HasMore: page*swarmPageSize < all.TotalCount,
		Counts:  SwarmCounts{Running: running.TotalCount, Queued: queued.TotalCount},
	}, nil
}

// CancelRun stops a workflow run. Issued exactly once; never retried.
func (s *Service) CancelRun(ctx context.Context, runID int64) error {
	return s.gh.CancelRun(ctx, runID)
}

// RerunRun restarts a workflow run, optionally only its failed jobs.
func (s *Service) RerunRun(ctx context.Context, runID int64, failedOnly bool) error {
	return s.gh.RerunRun(ctx, runID, failedOnly)
}
