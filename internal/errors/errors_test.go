package errors

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
)

func TestKindsMatchThroughWrapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     error
		exitCode int
		message  string
	}{
		{
			name:     "invalid input",
			err:      InvalidInput("habit.create", "name must not be empty"),
			kind:     ErrInvalidInput,
			exitCode: 2,
			message:  "habit.create: name must not be empty",
		},
		{
			name:     "not found wrapped by fmt",
			err:      fmt.Errorf("loading: %w", NotFound("store.get", "habit %q", "Read")),
			kind:     ErrNotFound,
			exitCode: 3,
			message:  `loading: store.get: habit "Read"`,
		},
		{
			name:     "conflict",
			err:      Conflict("store.update", "version %d is stale", 3),
			kind:     ErrConflict,
			exitCode: 4,
			message:  "store.update: version 3 is stale",
		},
		{
			name:     "wrapped cause",
			err:      Wrap(ErrInvalidInput, "habit.mark", errors.New("bad date")),
			kind:     ErrInvalidInput,
			exitCode: 2,
			message:  "habit.mark: bad date",
		},
		{
			name:     "unclassified",
			err:      errors.New("disk full"),
			kind:     nil,
			exitCode: 1,
			message:  "disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %v, want %v", got, tt.kind)
			}
			if tt.kind != nil && !Is(tt.err, tt.kind) {
				t.Errorf("Is(%v, %v) = false", tt.err, tt.kind)
			}
			if got := ExitCode(tt.err); got != tt.exitCode {
				t.Errorf("ExitCode() = %d, want %d", got, tt.exitCode)
			}
			if got := tt.err.Error(); got != tt.message {
				t.Errorf("Error() = %q, want %q", got, tt.message)
			}
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrConflict, "store.save", cause)
	if !Is(err, cause) {
		t.Error("expected the cause to stay reachable")
	}
	if Wrap(ErrConflict, "store.save", nil) != nil {
		t.Error("expected wrapping nil to return nil")
	}

	var e *Error
	if !As(err, &e) || e.Op != "store.save" {
		t.Errorf("expected *Error with op, got %#v", e)
	}
}

func TestJoinKeepsKinds(t *testing.T) {
	err := Join(InvalidInput("a", "first"), NotFound("b", "second"))
	if !Is(err, ErrInvalidInput) || !Is(err, ErrNotFound) {
		t.Errorf("expected both kinds in %v", err)
	}
	if Join() != nil {
		t.Error("expected an empty join to be nil")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"simple error", errors.New("something went wrong"), "Error: something went wrong"},
		{"kinded error", NotFound("habit.show", "habit %q", "Run"), `Error: habit.show: habit "Run"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := Format(tt.err); result != tt.expected {
				t.Errorf("Format(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}

	if got := Formatf("failed to load %s", "settings"); got != "Error: failed to load settings" {
		t.Errorf("Formatf() = %q", got)
	}
}

func TestFatal(t *testing.T) {
	if os.Getenv("GO_TEST_FATAL") == "1" {
		Fatal(NotFound("habit.show", "habit %q", "Run"))
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFatal$")
	cmd.Env = append(os.Environ(), "GO_TEST_FATAL=1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected process to exit with an error, got %v", err)
	}
	if exitErr.ExitCode() != 3 {
		t.Errorf("expected exit code 3 for not found, got %d", exitErr.ExitCode())
	}
	if !strings.Contains(stderr.String(), `Error: habit.show: habit "Run"`) {
		t.Errorf("unexpected stderr %q", stderr.String())
	}
}

func TestFatal_NilError(t *testing.T) {
	if os.Getenv("GO_TEST_FATAL_NIL") == "1" {
		Fatal(nil)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFatal_NilError")
	cmd.Env = append(os.Environ(), "GO_TEST_FATAL_NIL=1")
	if err := cmd.Run(); err != nil {
		t.Errorf("expected Fatal(nil) to return normally, got %v", err)
	}
}
