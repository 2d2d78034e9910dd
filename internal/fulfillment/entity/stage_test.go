package entity

import (
	"math"
	"testing"
)

func TestStageOrdering(t *testing.T) {
	if len(StageSequence) != 7 {
		t.Fatalf("expected 7 stages, got %d", len(StageSequence))
	}
	if StageSequence[0] != StageCutting {
		t.Fatalf("expected first stage cutting, got %s", StageSequence[0])
	}
	if StageSequence[6] != StageShipped {
		t.Fatalf("expected last stage shipped, got %s", StageSequence[6])
	}

	for i, stage := range StageSequence {
		if StageOrder[stage] != i {
			t.Errorf("stage %s: expected ordinal %d, got %d", stage, i, StageOrder[stage])
		}
	}
}

func TestNextStage(t *testing.T) {
	cases := []struct {
		current string
		next    string
		ok      bool
	}{
		{StageCutting, StageAssembly, true},
		{StageAssembly, StageFinishing, true},
		{StageFinishing, StageQualityCheck, true},
		{StageQualityCheck, StagePackaging, true},
		{StagePackaging, StageCompleted, true},
		{StageCompleted, StageShipped, true},
		{StageShipped, "", false},
		{"bogus", "", false},
	}

	for _, tc := range cases {
		next, ok := NextStage(tc.current)
		if ok != tc.ok || next != tc.next {
			t.Errorf("NextStage(%s) = (%s, %v), expected (%s, %v)", tc.current, next, ok, tc.next, tc.ok)
		}
	}
}

func TestAbsoluteProgress(t *testing.T) {
	cases := []struct {
		stage    string
		progress float64
		expected float64
	}{
		{StageCutting, 0, 0},
		{StageCutting, 60, 10},
		{StageAssembly, 0, 100.0 / 6},
		{StageAssembly, 50, 100.0/6 + 50.0/6},
		{StageQualityCheck, 100, 3*100.0/6 + 100.0/6},
		{StagePackaging, 0, 4 * 100.0 / 6},
		{StageCompleted, 0, 100},
		{StageCompleted, 40, 100},
		{StageShipped, 0, 100},
	}

	for _, tc := range cases {
		got := AbsoluteProgress(tc.stage, tc.progress)
		if math.Abs(got-tc.expected) > 1e-9 {
			t.Errorf("AbsoluteProgress(%s, %.0f) = %f, expected %f", tc.stage, tc.progress, got, tc.expected)
		}
	}
}

func TestIsTerminalStage(t *testing.T) {
	for _, stage := range []string{StageCutting, StageAssembly, StageFinishing, StageQualityCheck, StagePackaging} {
		if IsTerminalStage(stage) {
			t.Errorf("stage %s should not be terminal", stage)
		}
	}
	if !IsTerminalStage(StageCompleted) || !IsTerminalStage(StageShipped) {
		t.Error("completed and shipped should be terminal")
	}
}

func TestFinancialTransitions(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{FinancialStageInProduction, FinancialStageReadyToInvoice, true},
		{FinancialStageInProduction, FinancialStageInvoiced, false},
		{FinancialStageReadyToInvoice, FinancialStageInvoiced, true},
		{FinancialStageReadyToInvoice, FinancialStageInProduction, true},
		{FinancialStageInvoiced, FinancialStageCompleted, true},
		{FinancialStageInvoiced, FinancialStageReadyToInvoice, false},
		{FinancialStageCompleted, FinancialStageInProduction, false},
	}

	for _, tc := range cases {
		if got := CanTransitFinancialStage(tc.from, tc.to); got != tc.allowed {
			t.Errorf("CanTransitFinancialStage(%s, %s) = %v, expected %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestQuoteActionRules(t *testing.T) {
	cases := []struct {
		action  string
		status  string
		allowed bool
	}{
		{QuoteActionApprove, QuoteStatusQuoted, true},
		{QuoteActionApprove, QuoteStatusPending, false},
		{QuoteActionApprove, QuoteStatusApproved, false},
		{QuoteActionReject, QuoteStatusQuoted, true},
		{QuoteActionReject, QuoteStatusPending, true},
		{QuoteActionReject, QuoteStatusBooked, false},
		{QuoteActionBook, QuoteStatusApproved, true},
		{QuoteActionBook, QuoteStatusQuoted, false},
	}

	for _, tc := range cases {
		allowed := false
		for _, s := range QuoteActionRules[tc.action] {
			if s == tc.status {
				allowed = true
			}
		}
		if allowed != tc.allowed {
			t.Errorf("action %s on %s: allowed=%v, expected %v", tc.action, tc.status, allowed, tc.allowed)
		}
	}
}

func TestShipmentTransitions(t *testing.T) {
	if ValidShipmentTransitions[QuoteStatusBooked][0] != QuoteStatusShipped {
		t.Error("booked should transition to shipped")
	}
	if ValidShipmentTransitions[QuoteStatusShipped][0] != QuoteStatusDelivered {
		t.Error("shipped should transition to delivered")
	}
	if len(ValidShipmentTransitions[QuoteStatusDelivered]) != 0 {
		t.Error("delivered should be terminal")
	}
}
