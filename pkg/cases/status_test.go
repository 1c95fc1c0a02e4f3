package cases

import "testing"

func TestCanTransition_HappyPath(t *testing.T) {
	path := []Status{
		StatusCreated,
		StatusStoringFile,
		StatusParsing,
		StatusRunningCommittee,
		StatusResolvingCustomer,
		StatusResolvingItems,
		StatusAwaitingApproval,
		StatusCreatingDraft,
		StatusCompleted,
	}

	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Errorf("expected %s -> %s to be legal", path[i], path[i+1])
		}
	}
}

func TestCanTransition_AwaitLoops(t *testing.T) {
	tests := []struct {
		from, to Status
	}{
		{StatusParseBlocked, StatusStoringFile},
		{StatusAwaitingCorrections, StatusParsing},
		{StatusAwaitingCustomerSelection, StatusResolvingCustomer},
		{StatusAwaitingItemSelection, StatusResolvingItems},
		{StatusAwaitingApproval, StatusAwaitingCorrections},
		{StatusQueuedForRetry, StatusCreatingDraft},
	}

	for _, tt := range tests {
		if !CanTransition(tt.from, tt.to) {
			t.Errorf("expected %s -> %s to be legal", tt.from, tt.to)
		}
	}
}

func TestCanTransition_Illegal(t *testing.T) {
	tests := []struct {
		from, to Status
	}{
		{StatusCreated, StatusParsing},
		{StatusParsing, StatusCreatingDraft},
		{StatusCompleted, StatusParsing},
		{StatusAwaitingApproval, StatusCompleted},
		{StatusResolvingItems, StatusResolvingCustomer},
	}

	for _, tt := range tests {
		if CanTransition(tt.from, tt.to) {
			t.Errorf("expected %s -> %s to be illegal", tt.from, tt.to)
		}
	}
}

func TestCanTransition_CancelFromNonTerminal(t *testing.T) {
	nonTerminal := []Status{
		StatusCreated, StatusStoringFile, StatusParsing, StatusParseBlocked,
		StatusRunningCommittee, StatusAwaitingCorrections, StatusResolvingCustomer,
		StatusAwaitingCustomerSelection, StatusResolvingItems,
		StatusAwaitingItemSelection, StatusAwaitingApproval, StatusCreatingDraft,
		StatusQueuedForRetry,
	}
	for _, s := range nonTerminal {
		if !CanTransition(s, StatusCancelled) {
			t.Errorf("expected cancel from %s to be legal", s)
		}
	}

	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		if CanTransition(s, StatusCancelled) {
			t.Errorf("expected cancel from terminal %s to be illegal", s)
		}
	}
}

func TestIsAwaiting(t *testing.T) {
	if !StatusAwaitingApproval.IsAwaiting() {
		t.Error("awaiting_approval should be a waiting state")
	}
	if StatusParsing.IsAwaiting() {
		t.Error("parsing is not a waiting state")
	}
	if !StatusParseBlocked.IsAwaiting() {
		t.Error("parse_blocked parks on file_reuploaded")
	}
}
