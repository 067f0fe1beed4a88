// Package orderfsm holds the legal status transitions for transfer
// orders. The policy engine only ever creates orders in the proposed
// state; every later move goes through this table.
package orderfsm

import (
	"errors"

	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/models"
)

var ErrInvalidTransition = errors.New("invalid transfer status transition")

func CanTransition(from, to string) bool {
	if to == models.StatusCancelled {
		return !IsTerminal(from) && models.ValidStatus(from)
	}
	switch from {
	case models.StatusProposed:
		return to == models.StatusApproved
	case models.StatusApproved:
		return to == models.StatusCommitted
	case models.StatusCommitted:
		return to == models.StatusInTransit
	case models.StatusInTransit:
		return to == models.StatusReceived
	default:
		return false
	}
}

func Transition(from, to string) (string, error) {
	if !CanTransition(from, to) {
		return from, ErrInvalidTransition
	}
	return to, nil
}

func IsTerminal(status string) bool {
	switch status {
	case models.StatusReceived, models.StatusCancelled:
		return true
	default:
		return false
	}
}
