package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/swarmbot/event-gateway/internal/platform/envutil"
	"github.com/swarmbot/event-gateway/internal/platform/logger"
	"github.com/swarmbot/event-gateway/internal/swarm"
)

const (
	TypeAgent   = "agent"
	TypeCommand = "command"
)

// Entry is one declarative schedule record. Disabled entries are honored at
// load time only: flipping enabled on a live process does not touch timers
// that are already registered.
type Entry struct {
	Name     string `yaml:"name" json:"name"`
	Schedule string `yaml:"schedule" json:"schedule"`
	Type     string `yaml:"type" json:"type"`
	Job      string `yaml:"job,omitempty" json:"job,omitempty"`
	Command  string `yaml:"command,omitempty" json:"command,omitempty"`
	Enabled  *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// Trigger is one declarative trigger-definition record. Loaded for the swarm
// config endpoint; firing them is the workflow runner's business.
type Trigger struct {
	Name    string `yaml:"name" json:"name"`
	Event   string `yaml:"event" json:"event"`
	Job     string `yaml:"job,omitempty" json:"job,omitempty"`
	Enabled *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// JobCreator is the job-creation path shared with the chat tool surface.
type JobCreator interface {
	CreateJob(ctx context.Context, description string) (*swarm.CreatedJob, error)
}

type Config struct {
	CronsFile    string
	TriggersFile string
	// WorkDir is where command entries run. Defaults to the process cwd.
	WorkDir string
	// CommandTimeout bounds a single command execution.
	CommandTimeout time.Duration
}

func ConfigFromEnv() Config {
	timeoutSec := envutil.Int("CRON_COMMAND_TIMEOUT_SECONDS", 600)
	return Config{
		CronsFile:      envutil.Str("CRONS_FILE", "operating_system/crons.yaml"),
		TriggersFile:   envutil.Str("TRIGGERS_FILE", "operating_system/triggers.yaml"),
		WorkDir:        strings.TrimSpace(os.Getenv("CRON_WORK_DIR")),
		CommandTimeout: time.Duration(timeoutSec) * time.Second,
	}
}

// Scheduler registers recurring timers for valid, enabled entries. There is
// no overlap guard: a firing still running when the next tick arrives runs
// concurrently with it.
type Scheduler struct {
	log  *logger.Logger
	cfg  Config
	jobs JobCreator
	cron *cron.Cron

	entries  []Entry
	triggers []Trigger
}

func New(log *logger.Logger, jobs JobCreator, cfg Config) *Scheduler {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Minute
	}
	return &Scheduler{
		log:  log.With("service", "Scheduler"),
		cfg:  cfg,
		jobs: jobs,
		cron: cron.New(),
	}
}

// Load reads both declarative files and registers timers for enabled, valid
// cron entries. A missing crons file is not an error; an invalid schedule or
// unknown type skips that entry with a log line and registers the rest.
func (s *Scheduler) Load() error {
	entries, err := loadYAMLList[Entry](s.cfg.CronsFile)
	if err != nil {
		return fmt.Errorf("scheduler: load crons: %w", err)
	}
	triggers, err := loadYAMLList[Trigger](s.cfg.TriggersFile)
	if err != nil {
		s.log.Warn("Trigger definitions unavailable", "file", s.cfg.TriggersFile, "error", err.Error())
		triggers = nil
	}
	s.triggers = triggers

	registered := 0
	for _, entry := range entries {
		if entry.Enabled != nil && !*entry.Enabled {
			continue
		}
		entryType := entry.Type
		if entryType == "" {
			entryType = TypeAgent
		}
		if entryType != TypeAgent && entryType != TypeCommand {
			s.log.Error("Unknown schedule type", "name", entry.Name, "type", entry.Type)
			continue
		}
		if _, err := cron.ParseStandard(entry.Schedule); err != nil {
			s.log.Error("Invalid schedule", "name", entry.Name, "schedule", entry.Schedule, "error", err.Error())
			continue
		}

		entry := entry
		entry.Type = entryType
		if _, err := s.cron.AddFunc(entry.Schedule, func() { s.fire(entry) }); err != nil {
			s.log.Error("Failed to register schedule", "name", entry.Name, "error", err.Error())
			continue
		}
		s.entries = append(s.entries, entry)
		registered++
	}

	if registered == 0 {
		s.log.Info("No active cron jobs")
	} else {
		for _, e := range s.entries {
			s.log.Info("Cron registered", "name", e.Name, "schedule", e.Schedule, "type", e.Type)
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the timers and waits for in-flight firings.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Entries returns the registered schedule entries.
func (s *Scheduler) Entries() []Entry {
	return append([]Entry{}, s.entries...)
}

// Triggers returns the loaded trigger definitions.
func (s *Scheduler) Triggers() []Trigger {
	return append([]Trigger{}, s.triggers...)
}

// fire executes one entry. Errors are logged per-entry and never cancel the
// entry's future firings or other entries' timers.
func (s *Scheduler) fire(entry Entry) {
	switch entry.Type {
	case TypeCommand:
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CommandTimeout)
		defer cancel()
		cmd := exec.CommandContext(ctx, "sh", "-c", entry.Command)
		if s.cfg.WorkDir != "" {
			cmd.Dir = s.cfg.WorkDir
		}
		out, err := cmd.CombinedOutput()
		if err != nil {
			s.log.Error("Cron command failed", "name", entry.Name, "error", err.Error(), "output", strings.TrimSpace(string(out)))
			return
		}
		output := strings.TrimSpace(string(out))
		if output == "" {
			output = "ran"
		}
		s.log.Info("Cron command completed", "name", entry.Name, "output", output)
	default:
		created, err := s.jobs.CreateJob(context.Background(), entry.Job)
		if err != nil {
			s.log.Error("Cron job creation failed", "name", entry.Name, "error", err.Error())
			return
		}
		s.log.Info("Cron job created", "name", entry.Name, "job_id", created.JobID)
	}
}

func loadYAMLList[T any](path string) ([]T, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []T
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
