package swarm

import (
	"context"
	"strings"
	"testing"

	"github.com/swarmbot/event-gateway/internal/platform/github"
	"github.com/swarmbot/event-gateway/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// fakeGitHub implements github.Client for aggregator tests.
type fakeGitHub struct {
	listRuns    func(ctx context.Context, opts github.ListRunsOptions) (*github.RunList, error)
	listRunJobs func(ctx context.Context, runID int64) (*github.JobList, error)
	dispatched  []dispatchCall
	cancelled   []int64
	reruns      []int64
	dispatchErr error
}

type dispatchCall struct {
	Workflow string
	Ref      string
	Inputs   map[string]string
}

func (f *fakeGitHub) ListRuns(ctx context.Context, opts github.ListRunsOptions) (*github.RunList, error) {
	return f.listRuns(ctx, opts)
}

func (f *fakeGitHub) ListRunJobs(ctx context.Context, runID int64) (*github.JobList, error) {
	return f.listRunJobs(ctx, runID)
}

func (f *fakeGitHub) CancelRun(ctx context.Context, runID int64) error {
	f.cancelled = append(f.cancelled, runID)
	return nil
}

func (f *fakeGitHub) RerunRun(ctx context.Context, runID int64, failedOnly bool) error {
	f.reruns = append(f.reruns, runID)
	return nil
}

func (f *fakeGitHub) DispatchWorkflow(ctx context.Context, workflowFile, ref string, inputs map[string]string) error {
	f.dispatched = append(f.dispatched, dispatchCall{Workflow: workflowFile, Ref: ref, Inputs: inputs})
	return f.dispatchErr
}

func TestExtractJobID(t *testing.T) {
	tests := []struct {
		branch string
		want   string
		ok     bool
	}{
		{"job/abc123", "abc123", true},
		{"job/", "", true},
		{"job/nested/id", "nested/id", true},
		{"main", "", false},
		{"jobs/abc", "", false},
		{"", "", false},
		{"Job/abc", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractJobID(tt.branch)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ExtractJobID(%q) = (%q, %v), want (%q, %v)", tt.branch, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCreateJobDispatchesWorkflow(t *testing.T) {
	gh := &fakeGitHub{}
	svc := NewService(testLogger(t), gh)

	created, err := svc.CreateJob(context.Background(), "fix the login bug")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if created.JobID == "" {
		t.Fatal("expected a job id")
	}
	if created.Branch != BranchPrefix+created.JobID {
		t.Errorf("branch = %q, want %q", created.Branch, BranchPrefix+created.JobID)
	}

	if len(gh.dispatched) != 1 {
		t.Fatalf("dispatched %d workflows, want 1", len(gh.dispatched))
	}
	call := gh.dispatched[0]
	if call.Workflow != JobWorkflowFile {
		t.Errorf("workflow = %q, want %q", call.Workflow, JobWorkflowFile)
	}
	if call.Ref != "main" {
		t.Errorf("ref = %q, want main", call.Ref)
	}
	if call.Inputs["job"] != "fix the login bug" {
		t.Errorf("job input = %q", call.Inputs["job"])
	}
	if call.Inputs["job_id"] != created.JobID {
		t.Errorf("job_id input = %q, want %q", call.Inputs["job_id"], created.JobID)
	}
}

func TestCreateJobRejectsEmptyDescription(t *testing.T) {
	gh := &fakeGitHub{}
	svc := NewService(testLogger(t), gh)

	if _, err := svc.CreateJob(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty description")
	}
	if len(gh.dispatched) != 0 {
		t.Fatal("no workflow should be dispatched for an empty description")
	}
}

func TestCreateJobPropagatesDispatchError(t *testing.T) {
	gh := &fakeGitHub{dispatchErr: &github.UpstreamError{StatusCode: 403, Body: "forbidden"}}
	svc := NewService(testLogger(t), gh)

	_, err := svc.CreateJob(context.Background(), "do a thing")
	if err == nil {
		t.Fatal("expected dispatch error")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error should carry upstream status: %v", err)
	}
}
