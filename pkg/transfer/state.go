package transfer

// Status is the transfer state machine value.
type Status string

// Transfer statuses.
const (
	StatusAwaitingFunding      Status = "AWAITING_FUNDING"
	StatusFundingConfirmed     Status = "FUNDING_CONFIRMED"
	StatusPayoutInitiated      Status = "PAYOUT_INITIATED"
	StatusPayoutCompleted      Status = "PAYOUT_COMPLETED"
	StatusPayoutFailed         Status = "PAYOUT_FAILED"
	StatusPayoutReviewRequired Status = "PAYOUT_REVIEW_REQUIRED"
	StatusExpired              Status = "EXPIRED"
)

var edges = map[Status][]Status{
	StatusAwaitingFunding:  {StatusFundingConfirmed, StatusExpired},
	StatusFundingConfirmed: {StatusPayoutInitiated, StatusPayoutReviewRequired},
	StatusPayoutInitiated:  {StatusPayoutCompleted, StatusPayoutFailed, StatusPayoutReviewRequired},
}

// OpenStatuses are the statuses of transfers that still need work.
var OpenStatuses = []Status{
	StatusAwaitingFunding,
	StatusFundingConfirmed,
	StatusPayoutInitiated,
	StatusPayoutReviewRequired,
}

// Outcome is the result of evaluating a status change.
type Outcome int

// Transition outcomes.
const (
	// Invalid means the change is not allowed from the current status.
	Invalid Outcome = iota
	// Applied means current -> to is a legal edge.
	Applied
	// AlreadyApplied means current already is to, or has moved past it.
	AlreadyApplied
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case AlreadyApplied:
		return "already_applied"
	default:
		return "invalid"
	}
}

// Transition evaluates moving a transfer from current to to.
// A conditional update that affected zero rows is resolved by calling
// Transition with the row's actual status.
func Transition(current, to Status) Outcome {
	if current == to {
		return AlreadyApplied
	}
	if isEdge(current, to) {
		return Applied
	}
	if reachable(to, current) {
		return AlreadyApplied
	}
	return Invalid
}

// Predecessors returns the statuses with a legal edge into to.
func Predecessors(to Status) []Status {
	var out []Status
	for from, targets := range edges {
		for _, t := range targets {
			if t == to {
				out = append(out, from)
			}
		}
	}
	return out
}

// IsTerminal reports whether s has no outgoing edges.
func IsTerminal(s Status) bool {
	_, ok := edges[s]
	return !ok
}

// IsOpen reports whether s is one of OpenStatuses.
func IsOpen(s Status) bool {
	for _, o := range OpenStatuses {
		if o == s {
			return true
		}
	}
	return false
}

func isEdge(from, to Status) bool {
	for _, t := range edges[from] {
		if t == to {
			return true
		}
	}
	return false
}

func reachable(from, to Status) bool {
	for _, next := range edges[from] {
		if next == to || reachable(next, to) {
			return true
		}
	}
	return false
}
