package database

import (
	"errors"

	"github.com/lib/pq"
)

// UniqueConstraint names a unique constraint in the schema.
type UniqueConstraint string

const (
	UniqueUsersEmailKey		UniqueConstraint = "users_email_key"
	UniqueRoomsCodeKey		UniqueConstraint = "rooms_code_key"
	UniqueRoomMembersPkey		UniqueConstraint = "room_members_pkey"
	UniqueActiveSessionsUserIDKey	UniqueConstraint = "active_sessions_user_id_key"
)

// IsUniqueViolation checks if the error is due to a unique violation.
// If one or more specific unique constraints are given as arguments,
// the error must be caused by one of them. If no constraints are given,
// this function returns true for any unique violation.
func IsUniqueViolation(err error, uniqueConstraints ...UniqueConstraint) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Name() == "unique_violation" {
			if len(uniqueConstraints) == 0 {
				return true
			}
			for _, uc := range uniqueConstraints {
				if pqErr.Constraint == string(uc) {
					return true
				}
			}
		}
	}

	return false
}
