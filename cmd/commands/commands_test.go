package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dohr-michael/lazytasks/internal/config"
	"github.com/dohr-michael/lazytasks/internal/store"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseTaskID(t *testing.T) {
	for _, in := range []string{"42", "#42"} {
		id, err := parseTaskID(in)
		if err != nil || id != 42 {
			t.Errorf("parseTaskID(%q) = %d, %v", in, id, err)
		}
	}
	for _, in := range []string{"", "abc", "0", "-3", "##42", "99999999999999999999"} {
		if _, err := parseTaskID(in); err == nil {
			t.Errorf("parseTaskID(%q) should fail", in)
		}
	}
}

func TestShorten(t *testing.T) {
	if got := shorten("short", 10); got != "short" {
		t.Errorf("shorten = %q", got)
	}
	if got := shorten("abcdefgh", 5); got != "abcd…" {
		t.Errorf("shorten = %q, want %q", got, "abcd…")
	}
}

func TestWake(t *testing.T) {
	root := filepath.Join(t.TempDir(), "home")
	t.Setenv("LAZYTASKS_PATH", root)

	if err := runWake(context.Background(), nil); err != nil {
		t.Fatalf("runWake: %v", err)
	}

	for _, p := range []string{config.ConfigPath(), config.DotenvPath(), filepath.Join(root, "logs")} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s not created: %v", p, err)
		}
	}

	info, err := os.Stat(config.DotenvPath())
	if err != nil {
		t.Fatalf("stat .env: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf(".env mode = %o, want 600", perm)
	}

	// The generated config must parse.
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		t.Fatalf("Load default config: %v", err)
	}
	if cfg.Gateway.Port != 8000 || cfg.App.Timezone != "Asia/Ho_Chi_Minh" {
		t.Errorf("config = %+v", cfg.Gateway)
	}

	// Second run is a no-op.
	if err := runWake(context.Background(), nil); err != nil {
		t.Fatalf("second runWake: %v", err)
	}
}

func TestTasksCLI_ProjectsAndParents(t *testing.T) {
	root := t.TempDir()
	t.Setenv("LAZYTASKS_PATH", root)
	ctx := context.Background()

	run := func(args ...string) error {
		return NewRootCommand().Run(ctx, append([]string{"lazytasks", "tasks"}, args...))
	}

	steps := []struct {
		args    []string
		wantErr error
	}{
		{[]string{"projects", "add", "--description", "Servers", "infra"}, nil},
		{[]string{"add", "--project", "infra", "Ship it"}, nil},
		{[]string{"add", "--project", "docs", "--parent", "#1000000", "Write runbook"}, nil},
		{[]string{"add", "--parent", "1234567", "Orphan"}, nil},
		{[]string{"parent", "1000000", "1000001"}, store.ErrTaskCycle},
		{[]string{"list", "--recent", "--all"}, nil},
		{[]string{"projects"}, nil},
	}
	for i, st := range steps {
		err := run(st.args...)
		switch {
		case i == 3:
			if err == nil {
				t.Errorf("%v: expected an error for a missing parent", st.args)
			}
		case st.wantErr != nil:
			if !errors.Is(err, st.wantErr) {
				t.Errorf("%v: err = %v, want %v", st.args, err, st.wantErr)
			}
		case err != nil:
			t.Errorf("%v: %v", st.args, err)
		}
	}

	db, err := store.Open(ctx, filepath.Join(root, "lazytasks.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer db.Close()

	projects, err := db.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 2 || projects[0].Name != "docs" || projects[1].Name != "infra" || projects[1].Description != "Servers" {
		t.Fatalf("projects = %+v", projects)
	}

	tasks, _ := db.ListTasks(ctx, store.TaskFilter{})
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2 (the orphan must roll back)", len(tasks))
	}
	ship, _ := db.GetTask(ctx, 1000000)
	runbook, _ := db.GetTask(ctx, 1000001)
	if ship.ProjectName != "infra" || ship.ParentID != nil {
		t.Errorf("ship = %+v", ship)
	}
	if runbook.ProjectName != "docs" || runbook.ParentID == nil || *runbook.ParentID != ship.ID {
		t.Errorf("runbook = %+v", runbook)
	}

	if err := run("parent", "1000001", "none"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	runbook, _ = db.GetTask(ctx, 1000001)
	if runbook.ParentID != nil {
		t.Errorf("parent = %d, want none", *runbook.ParentID)
	}
}
