// Package services – ResearchService
//
// ResearchService implements the submission side of the lifecycle: creating
// a research item with its authors and files, editing it while it is still
// editable, soft-deleting it, and managing file visibility.
//
// File bytes are written to the FileStore before the transactional scope
// opens, since blob storage cannot join the database transaction. When the
// scope fails, the blobs written for the call are deleted again.
//
// Observability: every mutating method opens a span tagged with the research
// and actor ids.
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/research-review-backend/internal/domain"
	"github.com/tbourn/research-review-backend/internal/outbox"
	"github.com/tbourn/research-review-backend/internal/repo"
)

const (
	maxTitleRunes = 500
	defaultSlot   = "manuscript"
)

// AuthorInput is one author as supplied by the submitter.
type AuthorInput struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	FirstNameAlt    string `json:"first_name_alt"`
	LastNameAlt     string `json:"last_name_alt"`
	Email           string `json:"email"`
	Affiliation     string `json:"affiliation"`
	Order           int    `json:"order"`
	IsCorresponding bool   `json:"is_corresponding"`
}

// ResearchInput is the editable metadata of a research item.
type ResearchInput struct {
	Title       string        `json:"title"`
	TitleAlt    string        `json:"title_alt"`
	Abstract    string        `json:"abstract"`
	AbstractAlt string        `json:"abstract_alt"`
	Keywords    []string      `json:"keywords"`
	KeywordsAlt []string      `json:"keywords_alt"`
	Type        string        `json:"type"`
	Language    string        `json:"language"`
	Authors     []AuthorInput `json:"authors"`

	// Version, when non-zero on update, must match the stored version.
	Version int `json:"version,omitempty"`
}

// Upload is one file supplied with a submission, edit or review.
type Upload struct {
	Slot        string
	Name        string
	ContentType string
	Data        []byte
}

// ResearchService implements submission, edit and deletion of research.
type ResearchService struct {
	Unit      *repo.Unit
	Directory IdentityDirectory
	Files     FileStore
	Notifier  Notifier
	Now       Clock

	// MaxFileBytes caps a single upload; 0 disables the check.
	MaxFileBytes int64
}

// SubmitResearch creates a research item in status Submitted together with
// its authors, files and the initial StatusHistory row, atomically.
func (s *ResearchService) SubmitResearch(ctx context.Context, in ResearchInput, files []Upload, submitterID string) (*domain.Research, error) {
	tr := otel.Tracer("services/ResearchService")
	ctx, span := tr.Start(ctx, "SubmitResearch", trace.WithAttributes(attribute.String("actor.id", submitterID)))
	defer span.End()

	in, err := s.validate(in, files, true)
	if err != nil {
		return nil, err
	}
	actor, err := lookupActor(ctx, s.Directory, submitterID)
	if err != nil {
		return nil, err
	}

	stored, err := s.storeUploads(ctx, files)
	if err != nil {
		return nil, err
	}

	now := s.Now.now()
	r := &domain.Research{
		ID:          uuid.NewString(),
		Status:      domain.StatusSubmitted,
		SubmittedAt: now,
		SubmittedBy: actor.ID,
		Version:     1,
		CreatedBy:   actor.ID,
		UpdatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	applyInput(r, in)

	err = s.Unit.Do(ctx, func(sc *repo.Scope) error {
		if err := repo.CreateResearch(sc.Context(), sc.DB(), r); err != nil {
			return err
		}
		if err := repo.ReplaceAuthors(sc.Context(), sc.DB(), r.ID, buildAuthors(r.ID, in.Authors, now)); err != nil {
			return err
		}
		if err := addFiles(sc, r.ID, nil, stored, actor.ID); err != nil {
			return err
		}
		return repo.AppendStatusHistory(sc.Context(), sc.DB(), &domain.StatusHistory{
			ResearchID: r.ID,
			ToStatus:   domain.StatusSubmitted,
			ActorID:    actor.ID,
			CreatedAt:  now,
		})
	})
	if err != nil {
		span.RecordError(err)
		s.discard(ctx, stored)
		return nil, fromRepo(err, "research")
	}

	notify(ctx, s.Notifier, outbox.Message{
		Category:   outbox.CategorySubmissionReceived,
		To:         actor,
		ResearchID: r.ID,
		View:       outbox.View{ResearchTitle: r.Title},
	})
	return s.GetResearch(ctx, r.ID)
}

// UpdateResearch replaces the metadata and authors of researchID and appends
// newFiles as further versions of their slots. Only the submitter (or an
// administrator) may edit, and only while the status is editable.
func (s *ResearchService) UpdateResearch(ctx context.Context, researchID string, in ResearchInput, newFiles []Upload, actorID string) (*domain.Research, error) {
	tr := otel.Tracer("services/ResearchService")
	ctx, span := tr.Start(ctx, "UpdateResearch",
		trace.WithAttributes(
			attribute.String("research.id", researchID),
			attribute.String("actor.id", actorID),
		),
	)
	defer span.End()

	in, err := s.validate(in, newFiles, false)
	if err != nil {
		return nil, err
	}
	actor, err := lookupActor(ctx, s.Directory, actorID)
	if err != nil {
		return nil, err
	}
	stored, err := s.storeUploads(ctx, newFiles)
	if err != nil {
		return nil, err
	}

	err = s.Unit.Do(ctx, func(sc *repo.Scope) error {
		r, err := repo.GetResearch(sc.Context(), sc.DB(), researchID)
		if err != nil {
			return fromRepo(err, "research")
		}
		if !isOwner(actor, r) {
			return unauthorizedf("only the submitter may edit this research")
		}
		if !r.Status.Editable() {
			return fmt.Errorf("%w: research cannot be edited while %s", ErrInvalidTransition, r.Status)
		}
		if in.Version != 0 && in.Version != r.Version {
			return fmt.Errorf("%w: research is at version %d, not %d", ErrConflict, r.Version, in.Version)
		}
		now := s.Now.now()
		next := *r
		applyInput(&next, in)
		fields := map[string]any{
			"title": next.Title, "title_alt": next.TitleAlt,
			"abstract": next.Abstract, "abstract_alt": next.AbstractAlt,
			"keywords": next.Keywords, "keywords_alt": next.KeywordsAlt,
			"type": next.Type, "language": next.Language,
		}
		if err := repo.UpdateResearchVersioned(sc.Context(), sc.DB(), r, fields, actor.ID, now); err != nil {
			return err
		}
		if err := repo.ReplaceAuthors(sc.Context(), sc.DB(), r.ID, buildAuthors(r.ID, in.Authors, now)); err != nil {
			return err
		}
		return addFiles(sc, r.ID, nil, stored, actor.ID)
	})
	if err != nil {
		span.RecordError(err)
		s.discard(ctx, stored)
		return nil, fromRepo(err, "research")
	}
	return s.GetResearch(ctx, researchID)
}

// DeleteResearch soft-deletes researchID. Only allowed while the research is
// Submitted, and only for its submitter or an administrator.
func (s *ResearchService) DeleteResearch(ctx context.Context, researchID, actorID string) error {
	tr := otel.Tracer("services/ResearchService")
	ctx, span := tr.Start(ctx, "DeleteResearch",
		trace.WithAttributes(
			attribute.String("research.id", researchID),
			attribute.String("actor.id", actorID),
		),
	)
	defer span.End()

	actor, err := lookupActor(ctx, s.Directory, actorID)
	if err != nil {
		return err
	}
	err = s.Unit.Do(ctx, func(sc *repo.Scope) error {
		r, err := repo.GetResearch(sc.Context(), sc.DB(), researchID)
		if err != nil {
			return fromRepo(err, "research")
		}
		if !isOwner(actor, r) {
			return unauthorizedf("only the submitter may delete this research")
		}
		if r.Status != domain.StatusSubmitted {
			return fmt.Errorf("%w: research can only be deleted while submitted, it is %s", ErrInvalidTransition, r.Status)
		}
		return repo.SoftDeleteResearch(sc.Context(), sc.DB(), r, actor.ID, s.Now.now())
	})
	if err != nil {
		span.RecordError(err)
	}
	return fromRepo(err, "research")
}

// DeleteFile soft-deletes a file of a non-terminal research. The blob is
// retained for audit.
func (s *ResearchService) DeleteFile(ctx context.Context, fileID, actorID string) error {
	return s.mutateFile(ctx, "DeleteFile", fileID, actorID, func(sc *repo.Scope, f *domain.File) error {
		return repo.SoftDeleteFile(sc.Context(), sc.DB(), f.ID)
	})
}

// SetFileActive shows or hides a file without deleting it.
func (s *ResearchService) SetFileActive(ctx context.Context, fileID string, active bool, actorID string) error {
	return s.mutateFile(ctx, "SetFileActive", fileID, actorID, func(sc *repo.Scope, f *domain.File) error {
		return repo.SetFileActive(sc.Context(), sc.DB(), f.ID, active)
	})
}

func (s *ResearchService) mutateFile(ctx context.Context, op, fileID, actorID string, fn func(*repo.Scope, *domain.File) error) error {
	tr := otel.Tracer("services/ResearchService")
	ctx, span := tr.Start(ctx, op,
		trace.WithAttributes(
			attribute.String("file.id", fileID),
			attribute.String("actor.id", actorID),
		),
	)
	defer span.End()

	actor, err := lookupActor(ctx, s.Directory, actorID)
	if err != nil {
		return err
	}
	err = s.Unit.Do(ctx, func(sc *repo.Scope) error {
		f, err := repo.GetFile(sc.Context(), sc.DB(), fileID)
		if err != nil {
			return fromRepo(err, "file")
		}
		r, err := repo.GetResearch(sc.Context(), sc.DB(), f.ResearchID)
		if err != nil {
			return fromRepo(err, "research")
		}
		if !isOwner(actor, r) {
			return unauthorizedf("only the submitter may change files of this research")
		}
		if r.Status.IsTerminal() {
			return fmt.Errorf("%w: research is %s", ErrInvalidTransition, r.Status)
		}
		if err := fn(sc, f); err != nil {
			return err
		}
		// Stamp the audit columns and guard against concurrent edits.
		return repo.UpdateResearchVersioned(sc.Context(), sc.DB(), r, nil, actor.ID, s.Now.now())
	})
	if err != nil {
		span.RecordError(err)
	}
	return fromRepo(err, "file")
}

// GetResearch returns an active research with its authors and active files.
func (s *ResearchService) GetResearch(ctx context.Context, researchID string) (*domain.Research, error) {
	r, err := repo.GetResearchDetail(ctx, s.Unit.DB(), researchID)
	if err != nil {
		return nil, fromRepo(err, "research")
	}
	return r, nil
}

// ListAuthors returns the authors of researchID ordered by position.
func (s *ResearchService) ListAuthors(ctx context.Context, researchID string) ([]domain.Author, error) {
	if _, err := repo.GetResearch(ctx, s.Unit.DB(), researchID); err != nil {
		return nil, fromRepo(err, "research")
	}
	out, err := repo.ListAuthors(ctx, s.Unit.DB(), researchID)
	return out, fromRepo(err, "authors")
}

// ListFiles returns the non-deleted files of researchID.
func (s *ResearchService) ListFiles(ctx context.Context, researchID string, includeInactive bool) ([]domain.File, error) {
	if _, err := repo.GetResearch(ctx, s.Unit.DB(), researchID); err != nil {
		return nil, fromRepo(err, "research")
	}
	out, err := repo.ListFiles(ctx, s.Unit.DB(), researchID, includeInactive)
	return out, fromRepo(err, "files")
}

// ----------------------------------------------------------------------------
// Helpers

// validate normalizes in and checks it. Positions are assigned 1..n in input
// order when no author carries one; the first author becomes corresponding
// when none is marked.
func (s *ResearchService) validate(in ResearchInput, files []Upload, requireFiles bool) (ResearchInput, error) {
	in.Title = normalizeText(in.Title)
	in.TitleAlt = normalizeText(in.TitleAlt)
	in.Abstract = strings.TrimSpace(in.Abstract)
	in.AbstractAlt = strings.TrimSpace(in.AbstractAlt)
	in.Keywords = normalizeKeywords(in.Keywords)
	in.KeywordsAlt = normalizeKeywords(in.KeywordsAlt)
	in.Type = strings.TrimSpace(in.Type)
	in.Language = strings.ToLower(strings.TrimSpace(in.Language))

	switch {
	case in.Title == "":
		return in, validationf("title is required")
	case utf8.RuneCountInString(in.Title) > maxTitleRunes:
		return in, validationf("title exceeds %d characters", maxTitleRunes)
	case in.Type == "":
		return in, validationf("type is required")
	case in.Language == "":
		return in, validationf("language is required")
	case len(in.Authors) == 0:
		return in, validationf("at least one author is required")
	case requireFiles && len(files) == 0:
		return in, validationf("at least one file is required")
	}

	authors := make([]AuthorInput, len(in.Authors))
	copy(authors, in.Authors)
	anyOrder := false
	for _, a := range authors {
		if a.Order != 0 {
			anyOrder = true
		}
	}
	seen := make(map[int]struct{}, len(authors))
	corresponding := 0
	for i := range authors {
		a := &authors[i]
		a.FirstName = normalizeText(a.FirstName)
		a.LastName = normalizeText(a.LastName)
		a.FirstNameAlt = normalizeText(a.FirstNameAlt)
		a.LastNameAlt = normalizeText(a.LastNameAlt)
		a.Affiliation = normalizeText(a.Affiliation)
		a.Email = strings.TrimSpace(a.Email)
		if a.FirstName == "" || a.LastName == "" {
			return in, validationf("author %d: first and last name are required", i+1)
		}
		if !strings.Contains(a.Email, "@") {
			return in, validationf("author %d: a valid email is required", i+1)
		}
		if !anyOrder {
			a.Order = i + 1
		}
		if a.Order < 1 {
			return in, validationf("author %d: order must be positive", i+1)
		}
		if _, dup := seen[a.Order]; dup {
			return in, validationf("duplicate author order %d", a.Order)
		}
		seen[a.Order] = struct{}{}
		if a.IsCorresponding {
			corresponding++
		}
	}
	if corresponding > 1 {
		return in, validationf("only one corresponding author is allowed")
	}
	sort.SliceStable(authors, func(i, j int) bool { return authors[i].Order < authors[j].Order })
	if corresponding == 0 {
		authors[0].IsCorresponding = true
	}
	in.Authors = authors

	for i, f := range files {
		if strings.TrimSpace(f.Name) == "" {
			return in, validationf("file %d: name is required", i+1)
		}
		if len(f.Data) == 0 {
			return in, validationf("file %q is empty", f.Name)
		}
		if s.MaxFileBytes > 0 && int64(len(f.Data)) > s.MaxFileBytes {
			return in, validationf("file %q exceeds %d bytes", f.Name, s.MaxFileBytes)
		}
	}
	return in, nil
}

func applyInput(r *domain.Research, in ResearchInput) {
	r.Title = in.Title
	r.TitleAlt = in.TitleAlt
	r.Abstract = in.Abstract
	r.AbstractAlt = in.AbstractAlt
	r.Keywords = domain.JoinList(in.Keywords)
	r.KeywordsAlt = domain.JoinList(in.KeywordsAlt)
	r.Type = in.Type
	r.Language = in.Language
}

func buildAuthors(researchID string, in []AuthorInput, now time.Time) []domain.Author {
	out := make([]domain.Author, 0, len(in))
	for _, a := range in {
		out = append(out, domain.Author{
			ID:              uuid.NewString(),
			ResearchID:      researchID,
			Position:        a.Order,
			FirstName:       a.FirstName,
			LastName:        a.LastName,
			FirstNameAlt:    a.FirstNameAlt,
			LastNameAlt:     a.LastNameAlt,
			Email:           a.Email,
			Affiliation:     a.Affiliation,
			IsCorresponding: a.IsCorresponding,
			CreatedAt:       now,
		})
	}
	return out
}

// storedBlob is an upload already written to the FileStore.
type storedBlob struct {
	Upload
	path string
}

func (s *ResearchService) storeUploads(ctx context.Context, files []Upload) ([]storedBlob, error) {
	return storeBlobs(ctx, s.Files, files)
}

func (s *ResearchService) discard(ctx context.Context, blobs []storedBlob) {
	discardBlobs(ctx, s.Files, blobs)
}

// storeBlobs writes every upload; on failure the blobs already written are
// removed again.
func storeBlobs(ctx context.Context, fs FileStore, files []Upload) ([]storedBlob, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if fs == nil {
		return nil, fmt.Errorf("%w: no file store configured", ErrInfrastructure)
	}
	out := make([]storedBlob, 0, len(files))
	for _, f := range files {
		path, err := fs.Store(ctx, f.Data, f.Name, f.ContentType)
		if err != nil {
			discardBlobs(ctx, fs, out)
			return nil, fmt.Errorf("%w: store %q: %v", ErrInfrastructure, f.Name, err)
		}
		out = append(out, storedBlob{Upload: f, path: path})
	}
	return out, nil
}

func discardBlobs(ctx context.Context, fs FileStore, blobs []storedBlob) {
	ctx = context.WithoutCancel(ctx)
	for _, b := range blobs {
		if err := fs.Delete(ctx, b.path); err != nil {
			log.Warn().Err(err).Str("path", b.path).Msg("orphaned blob after failed transaction")
		}
	}
}

// addFiles records blobs as new versions of their slots, linking them to
// reviewID when set.
func addFiles(sc *repo.Scope, researchID string, reviewID *string, blobs []storedBlob, actorID string) error {
	for _, b := range blobs {
		slot := strings.TrimSpace(b.Slot)
		if slot == "" {
			slot = defaultSlot
		}
		version, err := repo.NextFileVersion(sc.Context(), sc.DB(), researchID, slot)
		if err != nil {
			return err
		}
		if err := repo.CreateFile(sc.Context(), sc.DB(), &domain.File{
			ID:          uuid.NewString(),
			ResearchID:  researchID,
			ReviewID:    reviewID,
			Slot:        slot,
			Name:        strings.TrimSpace(b.Name),
			ContentType: b.ContentType,
			Size:        int64(len(b.Data)),
			Path:        b.path,
			Version:     version,
			IsActive:    true,
			UploadedBy:  actorID,
		}); err != nil {
			return err
		}
	}
	return nil
}
