package session

import (
	"time"

	"github.com/MrEthical07/roleAuth/role"
)

// Record is one live session as stored in Redis.
type Record struct {
	SessionID    string
	Subject      string
	ActiveRole   role.Role
	GrantedRoles role.Set
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// TTL returns the lifetime remaining at now, or zero when expired.
func (r *Record) TTL(now time.Time) time.Duration {
	d := r.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
