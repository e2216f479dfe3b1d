package users

import "time"

// User represents an account the dashboard serves. Role is an open string;
// unknown roles resolve to default-deny in the permission layer.
type User struct {
	ID         int64
	Email      string
	Name       string
	Role       string
	Department string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
