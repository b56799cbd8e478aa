package redisx

import "time"

const (
	// Cache tracking projection: tracking:{order_id} -> TrackingView JSON
	KeyTracking = "tracking:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Lease for the progression sweep: lock:{name}
	KeyLock = "lock:%s"
)

var (
	TTLTracking = 30 * time.Second
	TTLDedup    = 48 * time.Hour
)
