package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a regular user who generates and takes exams.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin manages users.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Config holds runtime parameters set via CLI flags.
type Config struct {
	QuestionCount   int           // default questions per generated exam
	ExamDuration    time.Duration // countdown budget per session
	GenerateTimeout time.Duration // full provider generation call timeout
	Lang            string        // UI message language (en, fr)
	SecureCookies   bool          // Set Secure flag on cookies (disable for local dev)
}
