package pooling

import (
	"slices"

	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
)

// AllowedTransitions lists the statuses a pool may move to from each status.
var AllowedTransitions = map[types.PoolStatus][]types.PoolStatus{
	types.PoolStatusForming:    {types.PoolStatusConfirmed, types.PoolStatusCancelled},
	types.PoolStatusConfirmed:  {types.PoolStatusInProgress, types.PoolStatusCancelled},
	types.PoolStatusInProgress: {types.PoolStatusCompleted},
}

func CanTransition(from, to types.PoolStatus) bool {
	return slices.Contains(AllowedTransitions[from], to)
}

func transitionEvent(to types.PoolStatus) types.PoolEvent {
	switch to {
	case types.PoolStatusConfirmed:
		return types.EventPoolConfirmed
	case types.PoolStatusInProgress:
		return types.EventPoolStarted
	case types.PoolStatusCompleted:
		return types.EventPoolCompleted
	default:
		return types.EventPoolCancelled
	}
}
