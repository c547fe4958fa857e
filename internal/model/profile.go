package model

import "time"

type Profile struct {
	UserID      string            `dynamodbav:"user_id" json:"user_id"`
	Email       string            `dynamodbav:"email" json:"email"`
	Username    string            `dynamodbav:"username" json:"username"`
	PhoneNumber string            `dynamodbav:"phone_number,omitempty" json:"phone_number,omitempty"`
	Preferences map[string]string `dynamodbav:"preferences,omitempty" json:"preferences,omitempty"`
	CreatedAt   time.Time         `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `dynamodbav:"updated_at" json:"updated_at"`
}

type ProfileRequest struct {
	PhoneNumber string            `json:"phone_number" validate:"omitempty,e164"`
	Preferences map[string]string `json:"preferences" validate:"omitempty,max=20,dive,keys,max=64,endkeys,max=256"`
}
