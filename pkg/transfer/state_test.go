package transfer

import (
	"sort"
	"testing"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		current, to Status
		want        Outcome
	}{
		{StatusAwaitingFunding, StatusFundingConfirmed, Applied},
		{StatusAwaitingFunding, StatusExpired, Applied},
		{StatusFundingConfirmed, StatusPayoutInitiated, Applied},
		{StatusFundingConfirmed, StatusPayoutReviewRequired, Applied},
		{StatusPayoutInitiated, StatusPayoutCompleted, Applied},
		{StatusPayoutInitiated, StatusPayoutFailed, Applied},
		{StatusPayoutInitiated, StatusPayoutReviewRequired, Applied},

		{StatusFundingConfirmed, StatusFundingConfirmed, AlreadyApplied},
		{StatusPayoutInitiated, StatusFundingConfirmed, AlreadyApplied},
		{StatusPayoutCompleted, StatusPayoutInitiated, AlreadyApplied},
		{StatusPayoutFailed, StatusFundingConfirmed, AlreadyApplied},

		{StatusAwaitingFunding, StatusPayoutInitiated, Invalid},
		{StatusExpired, StatusFundingConfirmed, Invalid},
		{StatusPayoutCompleted, StatusPayoutReviewRequired, Invalid},
		{StatusPayoutReviewRequired, StatusPayoutCompleted, Invalid},
		{StatusFundingConfirmed, StatusPayoutCompleted, Invalid},
		{StatusFundingConfirmed, StatusExpired, Invalid},
	}

	for _, tt := range tests {
		t.Run(string(tt.current)+"->"+string(tt.to), func(t *testing.T) {
			if got := Transition(tt.current, tt.to); got != tt.want {
				t.Fatalf("Transition(%s, %s) = %s, want %s", tt.current, tt.to, got, tt.want)
			}
		})
	}
}

func TestPredecessors(t *testing.T) {
	got := Predecessors(StatusPayoutReviewRequired)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	if len(got) != 2 || got[0] != StatusFundingConfirmed || got[1] != StatusPayoutInitiated {
		t.Fatalf("Predecessors(REVIEW) = %v", got)
	}
	if p := Predecessors(StatusAwaitingFunding); len(p) != 0 {
		t.Fatalf("Predecessors(AWAITING_FUNDING) = %v, want none", p)
	}
}

func TestIsOpenAndTerminal(t *testing.T) {
	if !IsOpen(StatusPayoutReviewRequired) || IsOpen(StatusPayoutCompleted) || IsOpen(StatusExpired) {
		t.Fatal("unexpected IsOpen results")
	}
	for _, s := range []Status{StatusPayoutCompleted, StatusPayoutFailed, StatusExpired, StatusPayoutReviewRequired} {
		if !IsTerminal(s) {
			t.Fatalf("IsTerminal(%s) = false", s)
		}
	}
	if IsTerminal(StatusPayoutInitiated) {
		t.Fatal("PAYOUT_INITIATED is not terminal")
	}
}
