package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/research-review-backend/internal/domain"
	"github.com/tbourn/research-review-backend/internal/http/middleware"
	"github.com/tbourn/research-review-backend/internal/repo"
	"github.com/tbourn/research-review-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// ResearchService covers submission, edit, deletion and read access of
// research items and their files.
type ResearchService interface {
	SubmitResearch(ctx context.Context, in services.ResearchInput, files []services.Upload, submitterID string) (*domain.Research, error)
	UpdateResearch(ctx context.Context, researchID string, in services.ResearchInput, newFiles []services.Upload, actorID string) (*domain.Research, error)
	DeleteResearch(ctx context.Context, researchID, actorID string) error
	DeleteFile(ctx context.Context, fileID, actorID string) error
	SetFileActive(ctx context.Context, fileID string, active bool, actorID string) error
	GetResearch(ctx context.Context, id string) (*domain.Research, error)
	ListAuthors(ctx context.Context, id string) ([]domain.Author, error)
	ListFiles(ctx context.Context, id string, includeInactive bool) ([]domain.File, error)
}

// WorkflowService moves research through the status graph.
type WorkflowService interface {
	ChangeStatus(ctx context.Context, researchID string, to domain.Status, actorID, notes string) (*domain.Research, error)
	GetStatusHistory(ctx context.Context, id string) ([]domain.StatusHistory, error)
}

// TrackService assigns research to conference tracks.
type TrackService interface {
	AssignTrack(ctx context.Context, researchID, track, actorID, notes string) (*domain.Research, error)
	GetTrackHistory(ctx context.Context, id string) ([]domain.TrackHistory, error)
}

// ReviewService handles reviewer assignment, decisions and scoring.
type ReviewService interface {
	AssignReviewer(ctx context.Context, researchID, reviewerID string, deadlineDays int, actorID string) (*domain.Review, error)
	SubmitReviewDecision(ctx context.Context, reviewID string, in services.DecisionInput, attachments []services.Upload, actorID string) (*domain.Review, error)
	AverageReviewScore(ctx context.Context, researchID string) (services.ScoreSummary, error)
	OverdueReviews(ctx context.Context, f repo.ReviewFilter) ([]domain.Review, error)
	ListReviews(ctx context.Context, researchID string) ([]domain.Review, error)
	SuggestReviewers(ctx context.Context, researchID string, k int) ([]services.ReviewerSuggestion, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the review API.
type Handlers struct {
	research ResearchService
	workflow WorkflowService
	tracks   TrackService
	reviews  ReviewService
}

// New binds Handlers to the given services.
func New(research ResearchService, workflow WorkflowService, tracks TrackService, reviews ReviewService) *Handlers {
	return &Handlers{research: research, workflow: workflow, tracks: tracks, reviews: reviews}
}

// actorID returns the acting identity, or writes 401 and returns false.
func actorID(c *gin.Context) (string, bool) {
	id := middleware.ActorFrom(c)
	if id == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthenticated, "missing "+middleware.HeaderActorID+" header")
		return "", false
	}
	return id, true
}

// isMultipart reports whether the request carries a multipart form.
func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// bindMultipart decodes the JSON "payload" field into dst and reads every
// file part under "files". An optional "slot" field applies to all files.
func bindMultipart(c *gin.Context, dst any) ([]services.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	if vals := form.Value["payload"]; len(vals) > 0 && strings.TrimSpace(vals[0]) != "" {
		if err := json.Unmarshal([]byte(vals[0]), dst); err != nil {
			return nil, fmt.Errorf("invalid payload JSON: %w", err)
		}
	}
	var slot string
	if vals := form.Value["slot"]; len(vals) > 0 {
		slot = strings.TrimSpace(vals[0])
	}
	uploads := make([]services.Upload, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		u, err := readUpload(fh, slot)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, nil
}

func readUpload(fh *multipart.FileHeader, slot string) (services.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return services.Upload{}, fmt.Errorf("open %q: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return services.Upload{}, fmt.Errorf("read %q: %w", fh.Filename, err)
	}
	return services.Upload{
		Slot:        slot,
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
