package tracking

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func TestAutomationState_ClaimCycle(t *testing.T) {
	t.Parallel()

	var a AutomationState
	for _, action := range Actions {
		if a.Completed(action) {
			t.Errorf("action %s completed before being set", action)
		}
	}
	if !a.Pending() {
		t.Error("fresh state should be pending")
	}

	a.SetCompleted(ActionTask, "task-1")
	if !a.Completed(ActionTask) {
		t.Error("task not marked completed")
	}
	if a.TaskID != "task-1" {
		t.Errorf("TaskID = %q, want task-1", a.TaskID)
	}
	if a.Completed(ActionAlert) {
		t.Error("alert should still be pending")
	}

	a.SetCompleted(ActionAlert, "alert-1")
	a.SetCompleted(ActionAssessment, "assess-1")
	a.SetCompleted(ActionWorkflow, "wf-1")
	if a.Pending() {
		t.Error("fully completed state should not be pending")
	}
}

func TestStatus_Terminal(t *testing.T) {
	t.Parallel()

	if StatusActive.Terminal() {
		t.Error("active must not be terminal")
	}
	for _, s := range []Status{StatusResolved, StatusFalsePositive, StatusNotApplicable} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestRecord_Resolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		resType string
		want    Status
	}{
		{"remediated", StatusResolved},
		{"accepted", StatusResolved},
		{"false_positive", StatusFalsePositive},
		{"not_applicable", StatusNotApplicable},
	}
	for _, tt := range tests {
		r := &Record{ID: "tr-1", Status: StatusActive}
		if err := r.Resolve(tt.resType, "checked", testNow); err != nil {
			t.Fatalf("Resolve(%s): %v", tt.resType, err)
		}
		if r.Status != tt.want {
			t.Errorf("Resolve(%s): Status = %s, want %s", tt.resType, r.Status, tt.want)
		}
		if r.Resolution == nil || r.Resolution.Type != tt.resType || !r.Resolution.ResolvedAt.Equal(testNow) {
			t.Errorf("Resolve(%s): resolution not recorded: %+v", tt.resType, r.Resolution)
		}
	}
}

func TestRecord_ResolveUnknownType(t *testing.T) {
	t.Parallel()

	r := &Record{Status: StatusActive}
	err := r.Resolve("wontfix", "", testNow)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
	if r.Status != StatusActive {
		t.Errorf("Status changed to %s on failed resolve", r.Status)
	}
}

func TestRecord_ResolveTwice(t *testing.T) {
	t.Parallel()

	r := &Record{Status: StatusActive}
	if err := r.Resolve("remediated", "", testNow); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	err := r.Resolve("accepted", "", testNow.Add(time.Hour))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second resolve err = %v, want ErrInvalidTransition", err)
	}
	if r.Resolution.Type != "remediated" {
		t.Errorf("first resolution overwritten: %+v", r.Resolution)
	}
}

func TestRecord_Qualify(t *testing.T) {
	t.Parallel()

	r := &Record{Status: StatusActive, RiskStatus: RiskPending}
	a := RiskAssessment{Summary: "limited exposure", Factors: map[string]string{"data_access": "none"}}
	if err := r.Qualify(a, "low", testNow); err != nil {
		t.Fatalf("Qualify: %v", err)
	}
	if r.RiskStatus != RiskQualified {
		t.Errorf("RiskStatus = %s, want qualified", r.RiskStatus)
	}
	if r.RiskLevel != "low" {
		t.Errorf("RiskLevel = %q, want low", r.RiskLevel)
	}

	// Re-qualifying replaces the prior assessment.
	if err := r.Qualify(RiskAssessment{Summary: "worse than thought"}, "high", testNow.Add(time.Hour)); err != nil {
		t.Fatalf("re-Qualify: %v", err)
	}
	if r.RiskLevel != "high" || r.Risk.Summary != "worse than thought" {
		t.Errorf("re-qualification not applied: level=%q risk=%+v", r.RiskLevel, r.Risk)
	}
}

func TestRecord_QualifyRequiresLevel(t *testing.T) {
	t.Parallel()

	r := &Record{Status: StatusActive, RiskStatus: RiskPending}
	err := r.Qualify(RiskAssessment{}, "", testNow)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
	if r.RiskStatus != RiskPending {
		t.Errorf("RiskStatus = %s, want pending", r.RiskStatus)
	}
}

func TestFilters_Matches(t *testing.T) {
	t.Parallel()

	r := &Record{Status: StatusActive, RiskStatus: RiskPending}

	if !(Filters{}).Matches(r) {
		t.Error("zero filters should match everything")
	}
	if !(Filters{Status: StatusActive}).Matches(r) {
		t.Error("status filter should match")
	}
	if (Filters{Status: StatusResolved}).Matches(r) {
		t.Error("mismatched status should not match")
	}
	if (Filters{Status: StatusActive, RiskStatus: RiskQualified}).Matches(r) {
		t.Error("mismatched risk status should not match")
	}
}
