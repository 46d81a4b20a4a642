package models

import (
	"time"
)

const RoleUser = "user"

type User struct {
	ID          string     `json:"id" dynamodbav:"id"`
	PhoneNumber string     `json:"phone_number" dynamodbav:"phone_number"`
	Role        string     `json:"role" dynamodbav:"role"`
	Name        string     `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Email       string     `json:"email,omitempty" dynamodbav:"email,omitempty"`
	IsActive    bool       `json:"is_active" dynamodbav:"is_active"`
	LastLogin   *time.Time `json:"last_login,omitempty" dynamodbav:"last_login,omitempty"`
	CreatedAt   time.Time  `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" dynamodbav:"updated_at"`
}

func (u *User) GetPK() string {
	return "USER!" + u.PhoneNumber
}

func (u *User) GetSK() string {
	return "METADATA"
}
