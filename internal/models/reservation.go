package models

import (
	"math"
	"time"
)

// ReservationRecord represents items already physically removed from containers
// and tentatively handed to a specific peer.
type ReservationRecord struct {
	ExpiresAt time.Time    `json:"expires_at"`
	Identity  ItemIdentity `json:"identity"`
	Token     string       `json:"token"`
	OwnerPeer string       `json:"owner_peer"`
	PlayerID  string       `json:"player_id"`
	Amount    int          `json:"amount"`
}

// Expired reports whether the reservation TTL has elapsed at now
func (r *ReservationRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Vec3 позиция в мире
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// DistanceTo returns the euclidean distance between two points
func (v Vec3) DistanceTo(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
