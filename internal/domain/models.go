// Package domain defines the persistence models for research submissions,
// their authors and files, peer reviews, the append-only audit trails and the
// notification outbox. These types are mapped with GORM and form the core data
// layer of the review lifecycle engine.
package domain

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Research is a submitted paper moving through the review lifecycle.
//
// Status and Track are owned by the status workflow and the track assignment
// manager; nothing else mutates them. Version is bumped on every write and is
// used for optimistic concurrency control.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Title/Abstract/Keywords: primary language metadata; the *Alt fields hold
//     the secondary language rendition.
//   - Keywords: comma separated, normalized on write.
//   - Status: current lifecycle state (see status.go).
//   - Track: subject track, nil until assigned.
//   - SubmittedBy: identity of the submitter (owner).
//   - TrackManagerID: manager of the assigned track, if any.
//   - DeletedAt: soft deletion marker.
type Research struct {
	ID             string         `json:"id"               gorm:"type:char(36);primaryKey"`
	Title          string         `json:"title"            gorm:"type:varchar(500);not null"`
	TitleAlt       string         `json:"title_alt"        gorm:"type:varchar(500)"`
	Abstract       string         `json:"abstract"         gorm:"type:text"`
	AbstractAlt    string         `json:"abstract_alt"     gorm:"type:text"`
	Keywords       string         `json:"keywords"         gorm:"type:varchar(1000)"`
	KeywordsAlt    string         `json:"keywords_alt"     gorm:"type:varchar(1000)"`
	Type           string         `json:"type"             gorm:"type:varchar(32);not null"`
	Language       string         `json:"language"         gorm:"type:varchar(8);not null"`
	Status         Status         `json:"status"           gorm:"type:varchar(32);not null;index"`
	Track          *string        `json:"track,omitempty"  gorm:"type:varchar(64);index"`
	SubmittedAt    time.Time      `json:"submitted_at"`
	ReviewDeadline *time.Time     `json:"review_deadline,omitempty"`
	DecisionDate   *time.Time     `json:"decision_date,omitempty"`
	SubmittedBy    string         `json:"submitted_by"     gorm:"type:varchar(64);not null;index"`
	TrackManagerID *string        `json:"track_manager_id,omitempty" gorm:"type:varchar(64)"`
	Version        int            `json:"version"          gorm:"not null"`
	CreatedBy      string         `json:"created_by"       gorm:"type:varchar(64)"`
	UpdatedBy      string         `json:"updated_by"       gorm:"type:varchar(64)"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"                gorm:"index"`

	Authors []Author `json:"authors,omitempty" gorm:"foreignKey:ResearchID;references:ID"`
	Files   []File   `json:"files,omitempty"   gorm:"foreignKey:ResearchID;references:ID"`
}

// TableName returns the database table name for Research.
func (Research) TableName() string { return "research" }

// KeywordList splits the stored keyword string.
func (r Research) KeywordList() []string { return SplitList(r.Keywords) }

// TrackValue returns the assigned track or "".
func (r Research) TrackValue() string {
	if r.Track == nil {
		return ""
	}
	return *r.Track
}

// Author belongs to exactly one Research. Position is unique per research.
// Authors are replaced wholesale on edit, so the table carries no soft delete.
type Author struct {
	ID              string    `json:"id"               gorm:"type:char(36);primaryKey"`
	ResearchID      string    `json:"research_id"      gorm:"type:char(36);not null;uniqueIndex:ux_author_position,priority:1"`
	Position        int       `json:"order"            gorm:"not null;uniqueIndex:ux_author_position,priority:2"`
	FirstName       string    `json:"first_name"       gorm:"type:varchar(128);not null"`
	LastName        string    `json:"last_name"        gorm:"type:varchar(128);not null"`
	FirstNameAlt    string    `json:"first_name_alt"   gorm:"type:varchar(128)"`
	LastNameAlt     string    `json:"last_name_alt"    gorm:"type:varchar(128)"`
	Email           string    `json:"email"            gorm:"type:varchar(255);not null"`
	Affiliation     string    `json:"affiliation"      gorm:"type:varchar(255)"`
	IsCorresponding bool      `json:"is_corresponding" gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"`

	Research Research `json:"-" gorm:"foreignKey:ResearchID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Author.
func (Author) TableName() string { return "research_authors" }

// File is an uploaded artifact of a Research (or of one of its reviews when
// ReviewID is set). Version counts uploads per (research, slot). IsActive is
// independent of soft deletion: inactive files are kept but hidden by default.
type File struct {
	ID          string         `json:"id"           gorm:"type:char(36);primaryKey"`
	ResearchID  string         `json:"research_id"  gorm:"type:char(36);not null;index:idx_file_slot,priority:1"`
	ReviewID    *string        `json:"review_id,omitempty" gorm:"type:char(36);index"`
	Slot        string         `json:"slot"         gorm:"type:varchar(64);not null;index:idx_file_slot,priority:2"`
	Name        string         `json:"name"         gorm:"type:varchar(255);not null"`
	ContentType string         `json:"content_type" gorm:"type:varchar(128)"`
	Size        int64          `json:"size"`
	Path        string         `json:"-"            gorm:"type:varchar(512);not null"`
	Version     int            `json:"version"      gorm:"not null"`
	IsActive    bool           `json:"is_active"    gorm:"not null"`
	UploadedBy  string         `json:"uploaded_by"  gorm:"type:varchar(64)"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"            gorm:"index"`
}

// TableName returns the database table name for File.
func (File) TableName() string { return "research_files" }

// Review binds one reviewer to one Research. At most one active review may
// exist per (research, reviewer) pair. OverallScore is stored unrounded.
type Review struct {
	ID                   string         `json:"id"                 gorm:"type:char(36);primaryKey"`
	ResearchID           string         `json:"research_id"        gorm:"type:char(36);not null;index:idx_review_pair,priority:1"`
	ReviewerID           string         `json:"reviewer_id"        gorm:"type:varchar(64);not null;index:idx_review_pair,priority:2"`
	OriginalityScore     int            `json:"originality_score"`
	MethodologyScore     int            `json:"methodology_score"`
	ClarityScore         int            `json:"clarity_score"`
	SignificanceScore    int            `json:"significance_score"`
	ReferencesScore      int            `json:"references_score"`
	OverallScore         *float64       `json:"overall_score,omitempty"`
	Decision             Decision       `json:"decision"           gorm:"type:varchar(32);not null"`
	Comments             string         `json:"comments"           gorm:"type:text"`
	ConfidentialComments string         `json:"-"                  gorm:"type:text"`
	AssignedAt           time.Time      `json:"assigned_at"`
	Deadline             time.Time      `json:"deadline"           gorm:"index"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	IsCompleted          bool           `json:"is_completed"       gorm:"not null;index"`
	RequiresReReview     bool           `json:"requires_re_review" gorm:"not null"`
	AssignedBy           string         `json:"assigned_by"        gorm:"type:varchar(64)"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `json:"-"                  gorm:"index"`
}

// TableName returns the database table name for Review.
func (Review) TableName() string { return "reviews" }

// Scores returns the component scores of the review.
func (r Review) Scores() Scores {
	return Scores{
		Originality:  r.OriginalityScore,
		Methodology:  r.MethodologyScore,
		Clarity:      r.ClarityScore,
		Significance: r.SignificanceScore,
		References:   r.ReferencesScore,
	}
}

// IsOverdue reports whether the review is still open past its deadline.
func (r Review) IsOverdue(now time.Time) bool {
	return !r.IsCompleted && r.Deadline.Before(now)
}

// StatusHistory is one immutable row per status transition, including the
// initial submission (FromStatus nil). The autoincrement ID gives a total
// order for rows written within the same clock tick.
type StatusHistory struct {
	ID         uint64    `json:"id"          gorm:"primaryKey;autoIncrement"`
	ResearchID string    `json:"research_id" gorm:"type:char(36);not null;index"`
	FromStatus *Status   `json:"from_status" gorm:"type:varchar(32)"`
	ToStatus   Status    `json:"to_status"   gorm:"type:varchar(32);not null"`
	ActorID    string    `json:"actor_id"    gorm:"type:varchar(64);not null"`
	Notes      string    `json:"notes"       gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for StatusHistory.
func (StatusHistory) TableName() string { return "research_status_history" }

// TrackHistory is the append-only log of track changes.
type TrackHistory struct {
	ID         uint64    `json:"id"          gorm:"primaryKey;autoIncrement"`
	ResearchID string    `json:"research_id" gorm:"type:char(36);not null;index"`
	FromTrack  *string   `json:"from_track"  gorm:"type:varchar(64)"`
	ToTrack    *string   `json:"to_track"    gorm:"type:varchar(64)"`
	ActorID    string    `json:"actor_id"    gorm:"type:varchar(64);not null"`
	Notes      string    `json:"notes"       gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for TrackHistory.
func (TrackHistory) TableName() string { return "research_track_history" }

// NotificationStatus is the delivery state of an outbox record.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// NotificationRecord is a durable outbox entry. Failed records below the
// retry cap are picked up again by the dispatcher.
type NotificationRecord struct {
	ID         string             `json:"id"          gorm:"type:char(36);primaryKey"`
	ToAddress  string             `json:"to_address"  gorm:"type:varchar(255);not null"`
	Subject    string             `json:"subject"     gorm:"type:varchar(255);not null"`
	Body       string             `json:"body"        gorm:"type:text"`
	Category   string             `json:"category"    gorm:"type:varchar(64);not null;index"`
	Status     NotificationStatus `json:"status"      gorm:"type:varchar(16);not null;index:idx_outbox_pick,priority:1"`
	RetryCount int                `json:"retry_count" gorm:"not null;index:idx_outbox_pick,priority:2"`
	LastError  string             `json:"last_error"  gorm:"type:text"`
	SentAt     *time.Time         `json:"sent_at,omitempty"`
	ResearchID *string            `json:"research_id,omitempty" gorm:"type:char(36);index"`
	UserID     *string            `json:"user_id,omitempty"     gorm:"type:varchar(64)"`
	CreatedAt  time.Time          `json:"created_at"  gorm:"index"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// TableName returns the database table name for NotificationRecord.
func (NotificationRecord) TableName() string { return "notifications" }

// User is the locally cached identity record consumed for authorization and
// notification addressing.
type User struct {
	ID           string         `json:"id"            gorm:"type:varchar(64);primaryKey"`
	DisplayName  string         `json:"display_name"  gorm:"type:varchar(255);not null"`
	Email        string         `json:"email"         gorm:"type:varchar(255);not null"`
	Role         Role           `json:"role"          gorm:"type:varchar(32);not null;index"`
	ManagedTrack *string        `json:"managed_track,omitempty" gorm:"type:varchar(64);index"`
	Expertise    string         `json:"expertise"     gorm:"type:varchar(1000)"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"             gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// JoinList is the inverse of SplitList.
func JoinList(items []string) string {
	return strings.Join(items, ",")
}
