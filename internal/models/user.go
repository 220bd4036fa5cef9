package models

import "time"

// User roles recognised by the API.
const (
	RoleAdmin       = "admin"
	RoleCoordinator = "coordinator"
	RoleSupervisor  = "supervisor"
	RoleCommittee   = "committee"
	RoleStudent     = "student"
)

// User is a directory entry used to resolve notification and email recipients.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role      string    `gorm:"size:32;index;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
