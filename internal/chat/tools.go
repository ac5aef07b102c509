package chat

import (
	"context"
	"fmt"

	"github.com/swarmbot/event-gateway/internal/platform/anthropic"
	"github.com/swarmbot/event-gateway/internal/swarm"
)

// ToolName enumerates the closed tool surface exposed to the completion
// service. Dispatch is a switch over this type, not a name lookup, so an
// added tool without an executor is a compile-time smell rather than a
// runtime surprise.
type ToolName string

const (
	ToolCreateJob    ToolName = "create_job"
	ToolGetJobStatus ToolName = "get_job_status"
)

// JobAPI is the slice of the swarm service the tools need.
type JobAPI interface {
	CreateJob(ctx context.Context, description string) (*swarm.CreatedJob, error)
	Status(ctx context.Context, jobID string) (*swarm.JobStatus, error)
}

// ToolDefinitions returns the declarations sent with every chat turn.
func ToolDefinitions() []anthropic.ToolDef {
	return []anthropic.ToolDef{
		{
			Name: string(ToolCreateJob),
			Description: "Create an autonomous job for the swarm to execute. Use this tool liberally - " +
				"if the user asks for ANY task to be done, create a job. Jobs can handle code changes, " +
				"file updates, research tasks, web scraping, data analysis, or anything requiring " +
				"autonomous work. Returns the job ID and branch name.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"job_description": map[string]any{
						"type": "string",
						"description": "Detailed job description including context and requirements. " +
							"Be specific about what needs to be done.",
					},
				},
				"required": []string{"job_description"},
			},
		},
		{
			Name: string(ToolGetJobStatus),
			Description: "Check status of running jobs. Returns list of active workflow runs with " +
				"timing and current step. Use when user asks about job progress, running jobs, or job status.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"job_id": map[string]any{
						"type":        "string",
						"description": "Optional: specific job ID to check. If omitted, returns all running jobs.",
					},
				},
				"required": []string{},
			},
		},
	}
}

// ToolRunner executes tool calls requested by the completion service.
type ToolRunner struct {
	Jobs JobAPI
}

func (r *ToolRunner) Execute(ctx context.Context, name string, input map[string]any) (any, error) {
	switch ToolName(name) {
	case ToolCreateJob:
		description, _ := input["job_description"].(string)
		created, err := r.Jobs.CreateJob(ctx, description)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"success": true,
			"job_id":  created.JobID,
			"branch":  created.Branch,
		}, nil
	case ToolGetJobStatus:
		jobID, _ := input["job_id"].(string)
		return r.Jobs.Status(ctx, jobID)
	default:
		return nil, fmt.Errorf("chat: unknown tool %q", name)
	}
}
