package types

type PoolEvent string

func (s PoolEvent) String() string {
	return string(s)
}

const (
	EventPoolCreated   PoolEvent = "pool.created"
	EventPoolJoined    PoolEvent = "pool.joined"
	EventPoolLeft      PoolEvent = "pool.left"
	EventPoolConfirmed PoolEvent = "pool.confirmed"
	EventPoolStarted   PoolEvent = "pool.started"
	EventPoolCompleted PoolEvent = "pool.completed"
	EventPoolCancelled PoolEvent = "pool.cancelled"
	EventPoolExpired   PoolEvent = "pool.expired"
)
