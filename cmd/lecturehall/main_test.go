package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lecturehall/internal/ai"
	"lecturehall/internal/app"
	"lecturehall/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

// ARCHITECTURAL VALIDATION TEST: Command tree structure
func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "token", "seed"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("expected subcommand %s, got %v %v", name, cmd, err)
		}
	}
	for _, flag := range []string{"config", "port", "database-driver", "signing-secret", "log-level"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag %s", flag)
		}
	}
}

func TestTokenCommand(t *testing.T) {
	out, err := execute(t, "token", "--user", "alice", "--signing-secret", "s3cret", "--database-driver", "memory")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	token := strings.TrimSpace(out)

	cfg := config.DefaultConfig()
	cfg.Auth.SigningSecret = "s3cret"
	issuer, err := app.NewTokenIssuer(cfg.Auth)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	subject, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject != "alice" {
		t.Errorf("expected subject alice, got %s", subject)
	}
}

func TestTokenCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing user", []string{"token", "--signing-secret", "s3cret"}},
		{"invalid user", []string{"token", "--user", "not valid!", "--signing-secret", "s3cret"}},
		{"no secret", []string{"token", "--user", "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LECTUREHALL_AUTH_SIGNING_SECRET", "")
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSeedCommand(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.yaml")
	seed := `
users:
  - {id: alice, name: Alice, role: teacher}
  - {id: bob, name: Bob}
classrooms:
  - {id: c1, name: Physics, owner_id: alice, members: [bob]}
lectures:
  - {id: l1, classroom_id: c1, title: Kinematics, owner_id: alice}
`
	if err := os.WriteFile(seedPath, []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	dbPath := filepath.Join(dir, "lecturehall.db")

	out, err := execute(t, "seed", seedPath, "--database-driver", "sqlite", "--database-path", dbPath, "--log-level", "error")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !strings.Contains(out, "seeded 2 users, 1 classrooms, 1 lectures") {
		t.Errorf("unexpected output %q", out)
	}

	store, err := app.OpenStore(&config.DatabaseConfig{Driver: config.DriverSQLite, Path: dbPath, Timeout: 30 * time.Second}, nil)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()
	ok, err := store.IsLectureMember(context.Background(), "bob", "l1")
	if err != nil || !ok {
		t.Errorf("seeded membership missing: %v %v", ok, err)
	}

	if _, err := execute(t, "seed"); err == nil {
		t.Error("seed without a file should fail")
	}
}

func TestServeCommand_WithGenerator(t *testing.T) {
	generator := ai.Func(func(ctx context.Context, prompt string) (string, error) { return "NOTE-A", nil })
	cmd := newRootCommand(app.WithAddress("127.0.0.1:0"), app.WithGenerator(generator))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve", "--database-driver", "memory", "--log-level", "error"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}

func TestConfigFlag_MissingFile(t *testing.T) {
	if _, err := execute(t, "token", "--user", "alice", "--config", filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("explicit missing config file should fail")
	}
}
