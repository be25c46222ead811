package task

import (
	"strings"
	"testing"

	"calmd/internal/calmerr"
	"calmd/internal/model"
)

func TestInitialPhase(t *testing.T) {
	p, err := InitialPhase(model.TaskTypeFeature)
	if err != nil || p != "SPEC" {
		t.Fatalf("InitialPhase(feature)=%q err=%v, want SPEC", p, err)
	}
	p, err = InitialPhase(model.TaskTypeBug)
	if err != nil || p != "REPORTED" {
		t.Fatalf("InitialPhase(bug)=%q err=%v, want REPORTED", p, err)
	}
}

func TestSpecToDesignValidSpecToImplementInvalid(t *testing.T) {
	ok, err := IsValidTransition(model.TaskTypeFeature, "SPEC", "DESIGN")
	if err != nil || !ok {
		t.Fatalf("SPEC->DESIGN should be valid: ok=%v err=%v", ok, err)
	}

	ok, err = IsValidTransition(model.TaskTypeFeature, "SPEC", "IMPLEMENT")
	if err != nil {
		t.Fatalf("IsValidTransition: %v", err)
	}
	if ok {
		t.Fatal("SPEC->IMPLEMENT should be invalid (skips DESIGN)")
	}

	verr := ValidateTransition(model.TaskTypeFeature, "SPEC", "IMPLEMENT")
	if verr == nil {
		t.Fatal("expected validation error for SPEC->IMPLEMENT")
	}
	if calmerr.KindOf(verr) != calmerr.KindValidation {
		t.Fatalf("KindOf=%v, want validation_error", calmerr.KindOf(verr))
	}
	if !strings.Contains(verr.Error(), "DESIGN") {
		t.Fatalf("error message %q should cite the legal next phase DESIGN", verr.Error())
	}
}

func TestDoneIsTerminal(t *testing.T) {
	next, err := NextPhases(model.TaskTypeFeature, "DONE")
	if err != nil {
		t.Fatalf("NextPhases(DONE): %v", err)
	}
	if len(next) != 0 {
		t.Fatalf("NextPhases(DONE)=%v, want none", next)
	}

	ok, err := IsValidTransition(model.TaskTypeFeature, "DONE", "SPEC")
	if err != nil {
		t.Fatalf("IsValidTransition: %v", err)
	}
	if ok {
		t.Fatal("DONE -> anything should never be valid")
	}
}

func TestBugChainFullWalk(t *testing.T) {
	chain := []string{"REPORTED", "INVESTIGATED", "FIXED", "REVIEWED", "TESTED", "MERGED", "DONE"}
	for i := 0; i < len(chain)-1; i++ {
		ok, err := IsValidTransition(model.TaskTypeBug, chain[i], chain[i+1])
		if err != nil || !ok {
			t.Fatalf("%s->%s should be valid: ok=%v err=%v", chain[i], chain[i+1], ok, err)
		}
	}
}

func TestUnknownTaskTypeIsValidationError(t *testing.T) {
	_, err := InitialPhase(model.TaskType("not-a-type"))
	if err == nil || calmerr.KindOf(err) != calmerr.KindValidation {
		t.Fatalf("expected validation_error for unknown task_type, got %v", err)
	}
}

func TestUnknownPhaseIsValidationError(t *testing.T) {
	_, err := NextPhases(model.TaskTypeFeature, "NOT_A_PHASE")
	if err == nil || calmerr.KindOf(err) != calmerr.KindValidation {
		t.Fatalf("expected validation_error for unknown phase, got %v", err)
	}
}
