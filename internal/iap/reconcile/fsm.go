package reconcile

import "fmt"

// Stage is the progress of one purchase delivery through reconciliation.
type Stage string

const (
	StageReceived        Stage = "received"
	StageClassified      Stage = "classified"
	StageLedgerAttempted Stage = "ledger_attempted"
	StageFinalized       Stage = "finalized"
)

var transitions = map[Stage]map[Stage]struct{}{
	StageReceived:        {StageClassified: {}},
	StageClassified:      {StageLedgerAttempted: {}},
	StageLedgerAttempted: {StageFinalized: {}},
	StageFinalized:       {},
}

// CanTransition reports whether a delivery may move from one stage to another.
func CanTransition(from, to Stage) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

func advance(cur *Stage, to Stage) {
	if !CanTransition(*cur, to) {
		panic(fmt.Sprintf("reconcile: invalid stage transition %s -> %s", *cur, to))
	}
	*cur = to
}
