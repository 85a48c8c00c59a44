package entity

// RoleMember assigns a user to a named role
type RoleMember struct {
	RoleName string `json:"role_name" db:"role_name" yaml:"role"`
	UserID   string `json:"user_id" db:"user_id" yaml:"user"`
}
