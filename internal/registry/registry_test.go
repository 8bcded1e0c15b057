package registry

import (
	"context"
	"strings"
	"testing"
)

func noopHandler(ctx context.Context, caseNo string, payload map[string]any) (map[string]any, error) {
	return nil, nil
}

func TestRegister_and_Resolve(t *testing.T) {
	r := New()
	if err := r.Register("100", OpProcess, "Register new driver", noopHandler); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	h, ok := r.Resolve("100", OpProcess)
	if !ok {
		t.Fatal("Resolve(100, process) = not found, want found")
	}
	if h == nil {
		t.Fatal("Resolve(100, process) returned nil handler")
	}
	if _, ok := r.Resolve("100", OpFetch); ok {
		t.Error("Resolve(100, fetch) = found, want not found")
	}
	if _, ok := r.Resolve("200", OpProcess); ok {
		t.Error("Resolve(200, process) = found, want not found")
	}
}

func TestRegister_duplicate_fails(t *testing.T) {
	r := New()
	if err := r.Register("100", OpProcess, "Register new driver", noopHandler); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	err := r.Register("100", OpProcess, "Another handler", noopHandler)
	if err == nil {
		t.Fatal("duplicate Register() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "already registered") {
		t.Errorf("duplicate Register() error = %q, want mention of already registered", err)
	}
}

func TestRegister_same_step_different_operations(t *testing.T) {
	r := New()
	if err := r.Register("100", OpProcess, "Register new driver", noopHandler); err != nil {
		t.Fatalf("Register(process) error = %v", err)
	}
	if err := r.Register("100", OpFetch, "Register new driver", noopHandler); err != nil {
		t.Fatalf("Register(fetch) error = %v", err)
	}
	if got := r.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestRegister_unknown_operation_fails(t *testing.T) {
	r := New()
	if err := r.Register("100", "execute", "Register new driver", noopHandler); err == nil {
		t.Fatal("Register(execute) error = nil, want error")
	}
}

func TestRegister_nil_handler_fails(t *testing.T) {
	r := New()
	if err := r.Register("100", OpProcess, "Register new driver", nil); err == nil {
		t.Fatal("Register(nil handler) error = nil, want error")
	}
}

func TestRegister_after_freeze_fails(t *testing.T) {
	r := New()
	if err := r.Register("100", OpProcess, "Register new driver", noopHandler); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	r.Freeze()
	err := r.Register("200", OpProcess, "Verify documents", noopHandler)
	if err == nil {
		t.Fatal("Register() after Freeze error = nil, want error")
	}
	if !strings.Contains(err.Error(), "freeze") {
		t.Errorf("Register() after Freeze error = %q, want mention of freeze", err)
	}
	// Reads keep working after freeze.
	if _, ok := r.Resolve("100", OpProcess); !ok {
		t.Error("Resolve() after Freeze = not found, want found")
	}
}

func TestNames_sorted(t *testing.T) {
	r := New()
	_ = r.Register("200", OpProcess, "Verify documents", noopHandler)
	_ = r.Register("100", OpFetch, "Register new driver", noopHandler)
	_ = r.Register("100", OpProcess, "Register new driver", noopHandler)
	got := r.Names()
	want := []string{"100-fetch", "100-process", "200-process"}
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLookup_returns_metadata(t *testing.T) {
	r := New()
	_ = r.Register("100", OpProcess, "Register new driver", noopHandler)
	e, ok := r.Lookup("100", OpProcess)
	if !ok {
		t.Fatal("Lookup(100, process) = not found, want found")
	}
	if e.Name != "Register new driver" {
		t.Errorf("Lookup().Name = %q, want %q", e.Name, "Register new driver")
	}
	if e.StepID != "100" || e.Operation != OpProcess {
		t.Errorf("Lookup() entry = %+v, want step 100 process", e)
	}
}
