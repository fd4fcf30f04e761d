// Package outbox implements the durable notification queue that decouples
// business commits from message delivery.
//
// Enqueue renders a templated message and appends it to the notifications
// table as a pending record. Delivery is the dispatcher's job (see package
// worker); Enqueue never contacts the mail transport and never rejects a
// record because its address looks malformed, so delivery problems surface
// on the record itself and are retried with a bounded count.
package outbox

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/research-review-backend/internal/domain"
	"github.com/tbourn/research-review-backend/internal/repo"
)

// Message is a notification to be queued.
type Message struct {
	Category   Category
	To         domain.Identity
	ResearchID string
	View       View
}

// Outbox appends notification records.
type Outbox struct {
	DB  *gorm.DB
	Now func() time.Time
}

// New returns an Outbox writing through db.
func New(db *gorm.DB) *Outbox {
	return &Outbox{DB: db, Now: time.Now}
}

// Enqueue renders m and stores it as a pending record. The recipient's
// display name is filled into the view when the caller left it empty.
func (o *Outbox) Enqueue(ctx context.Context, m Message) (*domain.NotificationRecord, error) {
	v := m.View
	if v.RecipientName == "" {
		v.RecipientName = m.To.DisplayName
	}
	if v.ResearchID == "" {
		v.ResearchID = m.ResearchID
	}
	subject, body, err := Render(m.Category, v)
	if err != nil {
		return nil, err
	}

	rec := &domain.NotificationRecord{
		ID:        uuid.NewString(),
		ToAddress: strings.TrimSpace(m.To.Email),
		Subject:   subject,
		Body:      body,
		Category:  string(m.Category),
		Status:    domain.NotificationPending,
		CreatedAt: o.now(),
	}
	if m.ResearchID != "" {
		rid := m.ResearchID
		rec.ResearchID = &rid
	}
	if m.To.ID != "" {
		uid := m.To.ID
		rec.UserID = &uid
	}
	if err := repo.CreateNotification(ctx, o.DB, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (o *Outbox) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now().UTC()
}
