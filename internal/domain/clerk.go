package domain

import "time"

// ClerkStatus: статус учётной записи сотрудника магазина.
type ClerkStatus string

const (
	// ClerkStatusPending: сотрудник впервые вошёл и ждёт подтверждения.
	ClerkStatusPending ClerkStatus = "pending"
	// ClerkStatusActive: сотрудник подтверждён владельцем магазина.
	ClerkStatusActive ClerkStatus = "active"
)

// Clerk: сотрудник, работающий в админке магазина.
type Clerk struct {
	ID        string
	Email     string
	Name      string
	Image     string
	Status    ClerkStatus
	CreatedAt time.Time
}
