package damsonerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewError(t *testing.T) {
	err := New(BadIP, "invalid ip %q", "nope")
	if err.Code() != BadIP {
		t.Fatalf("Code() = %v, want %v", err.Code(), BadIP)
	}
	if want := `BadIP: invalid ip "nope"`; err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if err.Unwrap() != nil {
		t.Fatalf("Unwrap() = %v, want nil", err.Unwrap())
	}
}

func TestWrapError(t *testing.T) {
	cause := errors.New("no such file")
	err := Wrap(ConfigMissing, cause, "open %s", "spinnaker.ini")
	if err.Code() != ConfigMissing {
		t.Fatalf("Code() = %v, want %v", err.Code(), ConfigMissing)
	}
	if want := "ConfigMissing: open spinnaker.ini: no such file"; err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is did not find the wrapped cause")
	}
}

func TestCodeOf(t *testing.T) {
	err := New(OutOfCores, "ran out")
	code, ok := CodeOf(err)
	if !ok || code != OutOfCores {
		t.Fatalf("CodeOf = (%v, %v), want (%v, true)", code, ok, OutOfCores)
	}

	wrapped := fmt.Errorf("while loading: %w", err)
	code, ok = CodeOf(wrapped)
	if !ok || code != OutOfCores {
		t.Fatalf("CodeOf(wrapped) = (%v, %v), want (%v, true)", code, ok, OutOfCores)
	}

	if _, ok := CodeOf(errors.New("plain")); ok {
		t.Fatal("CodeOf found a code in a plain error")
	}
}

func TestCodeStringUnknown(t *testing.T) {
	var c Code = 9999
	if got, want := c.String(), "Code(9999)"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
