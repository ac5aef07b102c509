package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/swarmbot/event-gateway/internal/platform/logger"
	"github.com/swarmbot/event-gateway/internal/swarm"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

type fakeCreator struct {
	mu   sync.Mutex
	jobs []string
	err  error
}

func (f *fakeCreator) CreateJob(_ context.Context, description string) (*swarm.CreatedJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.jobs = append(f.jobs, description)
	return &swarm.CreatedJob{JobID: "j-1", Branch: "job/j-1"}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadRegistersEnabledEntries(t *testing.T) {
	dir := t.TempDir()
	crons := writeFile(t, dir, "crons.yaml", `
- name: daily-digest
  schedule: "0 9 * * *"
  type: agent
  job: "write the daily digest"
- name: disabled-one
  schedule: "0 10 * * *"
  job: "should not run"
  enabled: false
- name: cleanup
  schedule: "*/5 * * * *"
  type: command
  command: "echo cleanup"
`)

	s := New(testLogger(t), &fakeCreator{}, Config{CronsFile: crons})
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (the disabled one skipped)", len(entries))
	}
	if entries[0].Name != "daily-digest" || entries[0].Type != TypeAgent {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Name != "cleanup" || entries[1].Type != TypeCommand {
		t.Errorf("entry 1 = %+v", entries[1])
	}
}

func TestLoadDefaultsTypeToAgent(t *testing.T) {
	dir := t.TempDir()
	crons := writeFile(t, dir, "crons.yaml", `
- name: typeless
  schedule: "0 9 * * *"
  job: "do the thing"
`)
	s := New(testLogger(t), &fakeCreator{}, Config{CronsFile: crons})
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	entries := s.Entries()
	if len(entries) != 1 || entries[0].Type != TypeAgent {
		t.Errorf("entries = %+v", entries)
	}
}

func TestLoadSkipsInvalidScheduleAndUnknownType(t *testing.T) {
	dir := t.TempDir()
	crons := writeFile(t, dir, "crons.yaml", `
- name: broken
  schedule: "not a cron"
  job: "x"
- name: weird
  schedule: "0 9 * * *"
  type: rocket
  job: "x"
- name: fine
  schedule: "0 9 * * *"
  job: "x"
`)
	s := New(testLogger(t), &fakeCreator{}, Config{CronsFile: crons})
	if err := s.Load(); err != nil {
		t.Fatalf("a bad entry must not fail the load: %v", err)
	}
	entries := s.Entries()
	if len(entries) != 1 || entries[0].Name != "fine" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestLoadMissingFilesIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	s := New(testLogger(t), &fakeCreator{}, Config{
		CronsFile:    filepath.Join(dir, "absent-crons.yaml"),
		TriggersFile: filepath.Join(dir, "absent-triggers.yaml"),
	})
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Entries()) != 0 || len(s.Triggers()) != 0 {
		t.Errorf("entries = %v, triggers = %v", s.Entries(), s.Triggers())
	}
}

func TestLoadMalformedCronsFileFails(t *testing.T) {
	dir := t.TempDir()
	crons := writeFile(t, dir, "crons.yaml", `{not yaml: [`)
	s := New(testLogger(t), &fakeCreator{}, Config{CronsFile: crons})
	if err := s.Load(); err == nil {
		t.Fatal("malformed crons file must fail the load")
	}
}

func TestLoadTriggers(t *testing.T) {
	dir := t.TempDir()
	triggers := writeFile(t, dir, "triggers.yaml", `
- name: on-issue
  event: issues.opened
  job: "triage the new issue"
- name: off
  event: push
  enabled: false
`)
	s := New(testLogger(t), &fakeCreator{}, Config{TriggersFile: triggers})
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := s.Triggers()
	if len(got) != 2 {
		t.Fatalf("triggers = %+v", got)
	}
	if got[0].Event != "issues.opened" {
		t.Errorf("trigger 0 = %+v", got[0])
	}
	if got[1].Enabled == nil || *got[1].Enabled {
		t.Errorf("trigger 1 enabled flag not preserved: %+v", got[1])
	}
}

func TestFireAgentEntryCreatesJob(t *testing.T) {
	creator := &fakeCreator{}
	s := New(testLogger(t), creator, Config{})
	s.fire(Entry{Name: "digest", Type: TypeAgent, Job: "write the digest"})

	creator.mu.Lock()
	defer creator.mu.Unlock()
	if len(creator.jobs) != 1 || creator.jobs[0] != "write the digest" {
		t.Errorf("jobs = %q", creator.jobs)
	}
}

func TestFireCommandEntryRunsCommand(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	s := New(testLogger(t), &fakeCreator{}, Config{WorkDir: dir})
	s.fire(Entry{Name: "touch", Type: TypeCommand, Command: "touch " + marker})

	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("command did not run: %v", err)
	}
}

func TestFireCommandFailureDoesNotPanic(t *testing.T) {
	s := New(testLogger(t), &fakeCreator{}, Config{})
	s.fire(Entry{Name: "bad", Type: TypeCommand, Command: "exit 3"})
}
