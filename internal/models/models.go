package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status is the review state of a confession.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the known review states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// InteractionType is a like or a dislike.
type InteractionType string

const (
	InteractionLike    InteractionType = "like"
	InteractionDislike InteractionType = "dislike"
)

// ContentType names what a report points at.
type ContentType string

const (
	ContentConfession ContentType = "confession"
	ContentComment    ContentType = "comment"
)

// ReportStatus tracks whether an admin has looked at a report.
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportDismissed ReportStatus = "dismissed"
)

// Confession represents a single anonymous confession.
type Confession struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Text          string    `gorm:"not null" json:"text"`
	CreatedAt     time.Time `gorm:"index" json:"createdAt"`
	AnonHash      string    `gorm:"not null;index;size:64" json:"-"`
	Status        Status    `gorm:"not null;default:pending;index;size:16" json:"status"`
	Likes         int       `gorm:"not null;default:0" json:"likes"`
	Dislikes      int       `gorm:"not null;default:0" json:"dislikes"`
	IsToxic       bool      `gorm:"not null;default:false" json:"-"`
	ToxicityScore float64   `gorm:"not null;default:0" json:"-"`
	Comments      []Comment `gorm:"foreignKey:ConfessionID;constraint:OnDelete:CASCADE" json:"-"`
}

// Comment is a reply on a confession, optionally nested under another comment.
type Comment struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Text         string    `gorm:"not null" json:"text"`
	CreatedAt    time.Time `json:"createdAt"`
	AnonHash     string    `gorm:"not null;index;size:64" json:"-"`
	ConfessionID string    `gorm:"not null;index;size:36" json:"confessionId"`
	ParentID     *string   `gorm:"index;size:36" json:"parentId,omitempty"`
	IsAuthor     bool      `gorm:"not null;default:false" json:"isAuthor"`
}

// PostInteraction is one user's like or dislike on one confession.
type PostInteraction struct {
	ID              uint            `gorm:"primaryKey" json:"-"`
	ConfessionID    string          `gorm:"not null;size:36;uniqueIndex:idx_interaction_user" json:"confessionId"`
	UserAnonHash    string          `gorm:"not null;size:64;uniqueIndex:idx_interaction_user" json:"-"`
	InteractionType InteractionType `gorm:"not null;size:8" json:"interactionType"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Activation links an identity to the network address that created it.
type Activation struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	AnonHash  string    `gorm:"not null;uniqueIndex;size:64" json:"anonHash"`
	IPAddress string    `gorm:"not null;uniqueIndex;size:64" json:"-"`
	UserAgent string    `gorm:"size:512" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// BannedUser blocks writes from an identity.
type BannedUser struct {
	AnonHash  string    `gorm:"primaryKey;size:64" json:"anonHash"`
	CreatedAt time.Time `json:"createdAt"`
}

// Report is a user flag asking for (re-)review of a confession or comment.
type Report struct {
	ID               uint         `gorm:"primaryKey" json:"id"`
	ContentID        string       `gorm:"not null;size:36;uniqueIndex:idx_report_reporter" json:"contentId"`
	ContentType      ContentType  `gorm:"not null;size:16" json:"contentType"`
	ReporterAnonHash string       `gorm:"not null;size:64;uniqueIndex:idx_report_reporter" json:"-"`
	Status           ReportStatus `gorm:"not null;default:pending;index;size:16" json:"status"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// BeforeCreate assigns a UUID when the caller did not set one.
func (c *Confession) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// BeforeCreate assigns a UUID when the caller did not set one.
func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&Confession{},
		&Comment{},
		&PostInteraction{},
		&Activation{},
		&BannedUser{},
		&Report{},
	}
}
