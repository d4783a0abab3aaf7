package model

import "time"

type User struct {
	ID        string    `gorm:"primaryKey;size:128"`
	Email     *string   `gorm:"column:email;size:255"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (User) TableName() string {
	return "users"
}
