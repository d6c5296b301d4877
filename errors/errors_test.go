package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseInvoke,
				Kind:   KindSignatureMismatch,
				Class:  "Game.Player",
				Member: "TakeDamage",
				Detail: "no overload takes 3 parameter(s)",
			},
			contains: []string{"[invoke]", "signature_mismatch", "Game.Player.TakeDamage", "no overload"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseReflect,
				Kind:  KindNotFound,
			},
			contains: []string{"[reflect]", "not_found"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindInvalidData,
				Detail: "open image",
				Cause:  errors.New("no such file"),
			},
			contains: []string{"[load]", "invalid_data", "open image", "caused by", "no such file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Load("open image", cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is did not match the wrapped cause")
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap returned %v, want %v", err.Unwrap(), cause)
	}
}

func TestError_Is_MatchesPhaseAndKind(t *testing.T) {
	err := NotFound(PhaseReflect, "method", "Update")
	probe := &Error{Phase: PhaseReflect, Kind: KindNotFound}

	if !errors.Is(err, probe) {
		t.Errorf("expected %v to match probe with same phase and kind", err)
	}

	other := &Error{Phase: PhaseInvoke, Kind: KindNotFound}
	if errors.Is(err, other) {
		t.Errorf("expected phase mismatch to not match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("boom")
	err := New(PhaseInvoke, KindCollected).
		Class("Game.Player").
		Member("Health").
		Value(42).
		Cause(cause).
		Detail("target gone after gen %d", 2).
		Build()

	if err.Class != "Game.Player" || err.Member != "Health" {
		t.Errorf("builder dropped class/member: %+v", err)
	}
	if err.Value != 42 {
		t.Errorf("builder dropped value: %v", err.Value)
	}
	if err.Detail != "target gone after gen 2" {
		t.Errorf("builder detail = %q", err.Detail)
	}
	if !errors.Is(err, cause) {
		t.Errorf("builder cause not wrapped")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		err      *Error
		phase    Phase
		kind     Kind
		contains string
	}{
		{NotFound(PhaseReflect, "field", "health"), PhaseReflect, KindNotFound, `field "health" not found`},
		{NotInitialized(PhaseContext, "context"), PhaseContext, KindNotInitialized, "context not initialized"},
		{InvalidHandle(PhaseReflect, "class"), PhaseReflect, KindInvalidHandle, "invalidated class handle"},
		{Collected("Game.Player"), PhaseInvoke, KindCollected, "collected"},
		{SignatureMismatch("Game.Player", ".ctor", 2), PhaseInvoke, KindSignatureMismatch, "2 parameter(s)"},
		{WhitelistDenied("plugin.dll", "System.IO.File"), PhaseLoad, KindWhitelistDenied, "System.IO.File"},
		{Usage(PhaseSystem, "profiling stack empty"), PhaseSystem, KindUsage, "profiling stack empty"},
		{Unsupported(PhaseHost, "variadic native functions"), PhaseHost, KindUnsupported, "variadic"},
	}

	for _, tt := range tests {
		if tt.err.Phase != tt.phase || tt.err.Kind != tt.kind {
			t.Errorf("%v: phase/kind = %s/%s, want %s/%s", tt.err, tt.err.Phase, tt.err.Kind, tt.phase, tt.kind)
		}
		if !strings.Contains(tt.err.Error(), tt.contains) {
			t.Errorf("%q does not contain %q", tt.err.Error(), tt.contains)
		}
	}
}
