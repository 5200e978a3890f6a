package models

import "qcwarehouse/pkg/roles"

type User struct {
	ID           int    `json:"id" db:"id"`
	Username     string `json:"username" db:"username"`
	Fullname     string `json:"fullname" db:"fullname"`
	PasswordHash string `json:"-" db:"password_hash"`
	Role         string `json:"role" db:"role"`
}

type CreateUserRequest struct {
	Username string     `json:"username" binding:"required,min=3,max=64"`
	Password string     `json:"password" binding:"required,min=6"`
	Fullname string     `json:"fullname"`
	Role     roles.Role `json:"role" binding:"required,oneof=operator supervisor admin"`
}

type UpdateUserRequest struct {
	Fullname *string     `json:"fullname,omitempty"`
	Password *string     `json:"password,omitempty"`
	Role     *roles.Role `json:"role,omitempty" binding:"omitempty,oneof=operator supervisor admin"`
}

// UserChanges holds only the columns that actually change.
type UserChanges struct {
	Fullname     *string
	PasswordHash *string
	Role         *string
}

func (c *UserChanges) HasChanges() bool {
	return c.Fullname != nil || c.PasswordHash != nil || c.Role != nil
}
