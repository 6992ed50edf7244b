// Package statemachine holds the legal trade lifecycle transitions. It is a
// pure lookup table: every status write in the ledger goes through Validate.
package statemachine

import (
	"fmt"

	"github.com/web3guy0/martin/internal/domain"
)

var transitions = map[domain.TradeStatus][]domain.TradeStatus{
	domain.StatusNew: {
		domain.StatusSearchingSignal,
		domain.StatusCancelled,
	},
	domain.StatusSearchingSignal: {
		domain.StatusSignalled,
		domain.StatusCancelled,
	},
	domain.StatusSignalled: {
		domain.StatusWaitingConfirm,
		domain.StatusCancelled,
	},
	domain.StatusWaitingConfirm: {
		domain.StatusWaitingCap,
		domain.StatusCancelled,
	},
	domain.StatusWaitingCap: {
		domain.StatusReady,
		domain.StatusCancelled,
	},
	domain.StatusReady: {
		domain.StatusOrderPlaced,
		domain.StatusCancelled,
	},
	domain.StatusOrderPlaced: {
		domain.StatusSettled,
		domain.StatusError,
	},
	// Terminal states have no outgoing edges.
	domain.StatusSettled:   {},
	domain.StatusCancelled: {},
	domain.StatusError:     {},
}

// InvalidTransitionError reports an attempt to move a trade along an edge
// that is not in the lifecycle graph.
type InvalidTransitionError struct {
	TradeID int64
	From    domain.TradeStatus
	To      domain.TradeStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for trade %d: %s -> %s", e.TradeID, e.From, e.To)
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to domain.TradeStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Validate returns an InvalidTransitionError when from -> to is illegal.
func Validate(tradeID int64, from, to domain.TradeStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{TradeID: tradeID, From: from, To: to}
	}
	return nil
}
