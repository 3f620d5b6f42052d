package types

type ServiceMode string

// Pool Service - accepts ride requests (HTTP and queue), matches them into pools and serves pool lifecycle calls
// Pool Worker - sweeps expired pools, re-matches their rides and backfills missing prices
const (
	PoolService ServiceMode = "pool-service"
	PoolWorker  ServiceMode = "pool-worker"
)

// Enum для статуса поездки
type RideStatus string

func (s RideStatus) String() string {
	return string(s)
}

const (
	RideStatusPending   RideStatus = "pending"
	RideStatusPooled    RideStatus = "pooled"
	RideStatusCancelled RideStatus = "cancelled"
	RideStatusCompleted RideStatus = "completed"
)

// IsFinal reports whether no further transitions are accepted.
func (s RideStatus) IsFinal() bool {
	return s == RideStatusCancelled || s == RideStatusCompleted
}

// Enum для статуса пула
type PoolStatus string

func (s PoolStatus) String() string {
	return string(s)
}

const (
	PoolStatusForming    PoolStatus = "forming"
	PoolStatusConfirmed  PoolStatus = "confirmed"
	PoolStatusInProgress PoolStatus = "in_progress"
	PoolStatusCompleted  PoolStatus = "completed"
	PoolStatusCancelled  PoolStatus = "cancelled"
)

// Reasons recorded on a cancelled pool or ride.
const (
	ReasonExpired   = "expired"
	ReasonCancelled = "cancelled"
	ReasonEmpty     = "empty"
)

type StorageDriver string

const (
	StoragePostgres StorageDriver = "postgres"
	StorageMemory   StorageDriver = "memory"
)
