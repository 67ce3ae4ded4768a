package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role is the application role held by a principal.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Principal mirrors the identity-provider record for an authenticated actor.
// Rows are created only through IdentityStore provisioning, never by clients.
type Principal struct {
	bun.BaseModel `bun:"table:quizadmin.principals,alias:pr"`

	ID          uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Email       string    `bun:"email,notnull" json:"email"`
	DisplayName string    `bun:"display_name,nullzero" json:"displayName,omitempty"`
	CreatedAt   time.Time `bun:"created_at,nullzero,default:now()" json:"createdAt"`
}

// Profile is the 1:1 application profile for a principal.
type Profile struct {
	bun.BaseModel `bun:"table:quizadmin.profiles,alias:pf"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	PrincipalID uuid.UUID `bun:"principal_id,notnull,type:uuid" json:"principalId"`
	DisplayName string    `bun:"display_name,notnull" json:"displayName"`
	Email       string    `bun:"email,notnull" json:"email"`
	CreatedAt   time.Time `bun:"created_at,nullzero,default:now()" json:"createdAt"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,default:now()" json:"updatedAt"`
}

// RoleGrant records one role held by a principal. (principal, role) is unique;
// granting the same pair twice is a no-op at the storage layer.
type RoleGrant struct {
	bun.BaseModel `bun:"table:quizadmin.role_grants,alias:rg"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	PrincipalID uuid.UUID `bun:"principal_id,notnull,type:uuid" json:"principalId"`
	Role        Role      `bun:"role,notnull" json:"role"`
	CreatedAt   time.Time `bun:"created_at,nullzero,default:now()" json:"createdAt"`
}

// Quiz is an event quiz. CreatedBy is set once at insert and never updated.
// Anonymous readers only see quizzes with Active set.
type Quiz struct {
	bun.BaseModel `bun:"table:quizadmin.quizzes,alias:q"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	Title       string    `bun:"title,notnull" json:"title"`
	Description string    `bun:"description,nullzero" json:"description,omitempty"`
	Active      bool      `bun:"active,notnull,default:false" json:"active"`
	CreatedBy   uuid.UUID `bun:"created_by,notnull,type:uuid" json:"createdBy"`
	CreatedAt   time.Time `bun:"created_at,nullzero,default:now()" json:"createdAt"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,default:now()" json:"updatedAt"`
}

// Question belongs to a quiz and is cascade-deleted with it.
// OrderIndex is a display hint, not required to be unique per quiz.
type Question struct {
	bun.BaseModel `bun:"table:quizadmin.questions,alias:qs"`

	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	QuizID        int64     `bun:"quiz_id,notnull" json:"quizId"`
	Text          string    `bun:"question,notnull" json:"question"`
	CorrectAnswer string    `bun:"correct_answer,notnull" json:"correctAnswer"`
	OptionA       string    `bun:"option_a,nullzero" json:"optionA,omitempty"`
	OptionB       string    `bun:"option_b,nullzero" json:"optionB,omitempty"`
	OptionC       string    `bun:"option_c,nullzero" json:"optionC,omitempty"`
	OptionD       string    `bun:"option_d,nullzero" json:"optionD,omitempty"`
	OrderIndex    int       `bun:"order_index,notnull,default:0" json:"orderIndex"`
	Points        int       `bun:"points,notnull,default:1" json:"points"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:now()" json:"createdAt"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:now()" json:"updatedAt"`
}

// LeaderboardEntry is a publicly readable score row for a quiz.
// Position is advisory display order only; duplicates and gaps are allowed.
type LeaderboardEntry struct {
	bun.BaseModel `bun:"table:quizadmin.leaderboard_entries,alias:lb"`

	ID              int64     `bun:"id,pk,autoincrement" json:"id"`
	QuizID          int64     `bun:"quiz_id,notnull" json:"quizId"`
	ParticipantName string    `bun:"participant_name,notnull" json:"participantName"`
	Score           int       `bun:"score,notnull,default:0" json:"score"`
	Position        *int      `bun:"position" json:"position,omitempty"`
	Notes           string    `bun:"notes,nullzero" json:"notes,omitempty"`
	CreatedAt       time.Time `bun:"created_at,nullzero,default:now()" json:"createdAt"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,default:now()" json:"updatedAt"`
}

// Scoreboard is the public presentation snapshot of a quiz's leaderboard.
type Scoreboard struct {
	QuizID    int64              `json:"quizId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// NewPrincipal carries the identity-provider creation event payload.
// DisplayName is optional metadata; provisioning falls back to Email.
type NewPrincipal struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
}
