package models

import (
	"time"
)

type Role string

const (
	FARMER  Role = "farmer"
	ADVISER Role = "adviser"
	ADMIN   Role = "admin"
)

// User - запись справочника пользователей. Регистрация и аутентификация
// живут в отдельном сервисе, здесь нужна только проверка существования
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Nickname  string    `gorm:"size:60;uniqueIndex" json:"nickname"`
	FirstName string    `gorm:"size:255" json:"first_name"`
	LastName  string    `gorm:"size:255" json:"last_name"`
	Role      Role      `gorm:"size:20" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (User) TableName() string {
	return "users"
}
