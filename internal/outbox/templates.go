package outbox

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	textTemplate "text/template"
	"time"
)

// Category classifies a notification; it selects the template and is stored
// on the outbox record for filtering.
type Category string

const (
	CategorySubmissionReceived Category = "submission_received"
	CategoryStatusChanged      Category = "status_changed"
	CategoryTrackAssigned      Category = "track_assigned"
	CategoryReviewAssigned     Category = "review_assigned"
	CategoryReviewCompleted    Category = "review_completed"
	CategoryDeadlineUpcoming   Category = "deadline_upcoming"
	CategoryDeadlineOverdue    Category = "deadline_overdue"
)

// View is the data handed to the templates. Unused fields are left empty.
type View struct {
	RecipientName string
	ResearchID    string
	ResearchTitle string
	FromStatus    string
	ToStatus      string
	FromTrack     string
	ToTrack       string
	ReviewerName  string
	Decision      string
	OverallScore  string
	Notes         string
	Deadline      time.Time
}

// DeadlineDate formats the deadline for display.
func (v View) DeadlineDate() string {
	if v.Deadline.IsZero() {
		return ""
	}
	return v.Deadline.UTC().Format("2006-01-02 15:04 MST")
}

// Humanize turns an enum value like "under_review" into "under review".
func Humanize(s string) string { return strings.ReplaceAll(s, "_", " ") }

type tmpl struct {
	subject *textTemplate.Template
	body    *template.Template
}

const layoutOpen = `<html><body><p>Dear {{.RecipientName}},</p>`
const layoutClose = `<p>Research ID: {{.ResearchID}}</p></body></html>`

var sources = map[Category][2]string{
	CategorySubmissionReceived: {
		`Submission received: {{.ResearchTitle}}`,
		`<p>Your research <strong>{{.ResearchTitle}}</strong> has been submitted and is awaiting initial review.</p>`,
	},
	CategoryStatusChanged: {
		`Status update: {{.ResearchTitle}}`,
		`<p>The status of <strong>{{.ResearchTitle}}</strong> changed from {{humanize .FromStatus}} to <strong>{{humanize .ToStatus}}</strong>.</p>` +
			`{{if .Notes}}<p>Notes: {{.Notes}}</p>{{end}}`,
	},
	CategoryTrackAssigned: {
		`Track assigned: {{.ResearchTitle}}`,
		`<p><strong>{{.ResearchTitle}}</strong> is now in track <strong>{{.ToTrack}}</strong>{{if .FromTrack}} (previously {{.FromTrack}}){{end}}.</p>`,
	},
	CategoryReviewAssigned: {
		`Review request: {{.ResearchTitle}}`,
		`<p>You have been assigned to review <strong>{{.ResearchTitle}}</strong>. Please submit your review by {{.DeadlineDate}}.</p>`,
	},
	CategoryReviewCompleted: {
		`Review completed: {{.ResearchTitle}}`,
		`<p>{{if .ReviewerName}}{{.ReviewerName}}{{else}}A reviewer{{end}} completed a review of <strong>{{.ResearchTitle}}</strong>.</p>` +
			`<p>Decision: {{humanize .Decision}}{{if .OverallScore}}, overall score {{.OverallScore}}{{end}}.</p>`,
	},
	CategoryDeadlineUpcoming: {
		`Reminder: review due tomorrow for {{.ResearchTitle}}`,
		`<p>Your review of <strong>{{.ResearchTitle}}</strong> is due on {{.DeadlineDate}}.</p>`,
	},
	CategoryDeadlineOverdue: {
		`Overdue review: {{.ResearchTitle}}`,
		`<p>Your review of <strong>{{.ResearchTitle}}</strong> was due on {{.DeadlineDate}} and is now overdue.</p>`,
	},
}

var templates = func() map[Category]tmpl {
	funcs := map[string]any{"humanize": Humanize}
	out := make(map[Category]tmpl, len(sources))
	for cat, src := range sources {
		out[cat] = tmpl{
			subject: textTemplate.Must(textTemplate.New(string(cat)).Funcs(funcs).Parse(src[0])),
			body:    template.Must(template.New(string(cat)).Funcs(funcs).Parse(layoutOpen + src[1] + layoutClose)),
		}
	}
	return out
}()

// Categories lists every known category.
func Categories() []Category {
	return []Category{
		CategorySubmissionReceived, CategoryStatusChanged, CategoryTrackAssigned,
		CategoryReviewAssigned, CategoryReviewCompleted, CategoryDeadlineUpcoming,
		CategoryDeadlineOverdue,
	}
}

// Render produces the subject line and HTML body for cat. Subjects are plain
// text; bodies are HTML-escaped by html/template.
func Render(cat Category, v View) (subject, body string, err error) {
	t, ok := templates[cat]
	if !ok {
		return "", "", fmt.Errorf("outbox: unknown category %q", cat)
	}
	var sb, bb bytes.Buffer
	if err := t.subject.Execute(&sb, v); err != nil {
		return "", "", fmt.Errorf("outbox: render subject %s: %w", cat, err)
	}
	if err := t.body.Execute(&bb, v); err != nil {
		return "", "", fmt.Errorf("outbox: render body %s: %w", cat, err)
	}
	return strings.Join(strings.Fields(sb.String()), " "), bb.String(), nil
}
