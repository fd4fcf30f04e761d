package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/research-review-backend/internal/domain"
	"github.com/tbourn/research-review-backend/internal/http/middleware"
	"github.com/tbourn/research-review-backend/internal/repo"
	"github.com/tbourn/research-review-backend/internal/services"
)

// ---------- stub services ----------

type stubResearch struct {
	err         error
	gotIn       services.ResearchInput
	gotFiles    []services.Upload
	gotActor    string
	gotActive   *bool
	gotInactive bool
}

func (s *stubResearch) SubmitResearch(_ context.Context, in services.ResearchInput, files []services.Upload, actor string) (*domain.Research, error) {
	s.gotIn, s.gotFiles, s.gotActor = in, files, actor
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Research{ID: "r1", Title: in.Title, Status: domain.StatusSubmitted, SubmittedBy: actor, Version: 1}, nil
}

func (s *stubResearch) UpdateResearch(_ context.Context, id string, in services.ResearchInput, files []services.Upload, actor string) (*domain.Research, error) {
	s.gotIn, s.gotFiles, s.gotActor = in, files, actor
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Research{ID: id, Title: in.Title, Version: in.Version + 1}, nil
}

func (s *stubResearch) DeleteResearch(_ context.Context, _ string, actor string) error {
	s.gotActor = actor
	return s.err
}

func (s *stubResearch) DeleteFile(_ context.Context, _ string, actor string) error {
	s.gotActor = actor
	return s.err
}

func (s *stubResearch) SetFileActive(_ context.Context, _ string, active bool, actor string) error {
	s.gotActive, s.gotActor = &active, actor
	return s.err
}

func (s *stubResearch) GetResearch(_ context.Context, id string) (*domain.Research, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Research{ID: id, Title: "T"}, nil
}

func (s *stubResearch) ListAuthors(_ context.Context, id string) ([]domain.Author, error) {
	return []domain.Author{{ResearchID: id, FirstName: "Ada", LastName: "Lovelace"}}, nil
}

func (s *stubResearch) ListFiles(_ context.Context, id string, includeInactive bool) ([]domain.File, error) {
	s.gotInactive = includeInactive
	return []domain.File{{ResearchID: id, Name: "paper.pdf"}}, nil
}

type stubWorkflow struct {
	err      error
	gotTo    domain.Status
	gotNotes string
}

func (s *stubWorkflow) ChangeStatus(_ context.Context, id string, to domain.Status, _ string, notes string) (*domain.Research, error) {
	s.gotTo, s.gotNotes = to, notes
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Research{ID: id, Status: to}, nil
}

func (s *stubWorkflow) GetStatusHistory(_ context.Context, id string) ([]domain.StatusHistory, error) {
	return []domain.StatusHistory{{ResearchID: id, ToStatus: domain.StatusSubmitted}}, s.err
}

type stubTracks struct{ gotTrack string }

func (s *stubTracks) AssignTrack(_ context.Context, id, track, _, _ string) (*domain.Research, error) {
	s.gotTrack = track
	return &domain.Research{ID: id, Track: &track}, nil
}

func (s *stubTracks) GetTrackHistory(context.Context, string) ([]domain.TrackHistory, error) {
	return nil, nil
}

type stubReviews struct {
	err       error
	gotDays   int
	gotIn     services.DecisionInput
	gotFiles  []services.Upload
	gotFilter repo.ReviewFilter
	gotK      int
}

func (s *stubReviews) AssignReviewer(_ context.Context, researchID, reviewerID string, days int, _ string) (*domain.Review, error) {
	s.gotDays = days
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Review{ID: "rv1", ResearchID: researchID, ReviewerID: reviewerID}, nil
}

func (s *stubReviews) SubmitReviewDecision(_ context.Context, id string, in services.DecisionInput, files []services.Upload, _ string) (*domain.Review, error) {
	s.gotIn, s.gotFiles = in, files
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Review{ID: id, Decision: in.Decision, IsCompleted: !in.Draft}, nil
}

func (s *stubReviews) AverageReviewScore(_ context.Context, id string) (services.ScoreSummary, error) {
	return services.ScoreSummary{ResearchID: id, Average: 7.125, Rounded: 7.13, CompletedReviews: 2}, s.err
}

func (s *stubReviews) OverdueReviews(_ context.Context, f repo.ReviewFilter) ([]domain.Review, error) {
	s.gotFilter = f
	return []domain.Review{}, s.err
}

func (s *stubReviews) ListReviews(context.Context, string) ([]domain.Review, error) {
	return []domain.Review{}, s.err
}

func (s *stubReviews) SuggestReviewers(_ context.Context, _ string, k int) ([]services.ReviewerSuggestion, error) {
	s.gotK = k
	return []services.ReviewerSuggestion{}, s.err
}

// ---------- router helper ----------

type fixture struct {
	research *stubResearch
	workflow *stubWorkflow
	tracks   *stubTracks
	reviews  *stubReviews
	r        *gin.Engine
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		research: &stubResearch{},
		workflow: &stubWorkflow{},
		tracks:   &stubTracks{},
		reviews:  &stubReviews{},
	}
	h := New(f.research, f.workflow, f.tracks, f.reviews)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ActorID())
	r.POST("/research", h.SubmitResearch)
	r.PUT("/research/:id", h.UpdateResearch)
	r.DELETE("/research/:id", h.DeleteResearch)
	r.GET("/research/:id", h.GetResearch)
	r.GET("/research/:id/history", h.StatusHistory)
	r.GET("/research/:id/track-history", h.TrackHistory)
	r.GET("/research/:id/score", h.Score)
	r.GET("/research/:id/reviews", h.ListReviews)
	r.GET("/research/:id/reviewer-suggestions", h.SuggestReviewers)
	r.POST("/research/:id/status", h.ChangeStatus)
	r.POST("/research/:id/track", h.AssignTrack)
	r.POST("/research/:id/reviewers", h.AssignReviewer)
	r.POST("/reviews/:id/decision", h.SubmitDecision)
	r.GET("/reviews/overdue", h.OverdueReviews)
	r.DELETE("/files/:id", h.DeleteFile)
	r.PUT("/files/:id/active", h.SetFileActive)
	f.r = r
	return f
}

func (f *fixture) do(t *testing.T, method, path, actor, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if actor != "" {
		req.Header.Set(middleware.HeaderActorID, actor)
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func (f *fixture) doJSON(t *testing.T, method, path, actor string, v any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return f.do(t, method, path, actor, "application/json", b)
}

func multipartBody(t *testing.T, payload string, slot string, files map[string]string) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if payload != "" {
		_ = mw.WriteField("payload", payload)
	}
	if slot != "" {
		_ = mw.WriteField("slot", slot)
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = fw.Write([]byte(content))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return mw.FormDataContentType(), buf.Bytes()
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return e
}

// ---------- tests ----------

func TestStatusFor_MapsEveryKind(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: x", services.ErrValidation), http.StatusBadRequest, ErrCodeValidation},
		{fmt.Errorf("%w: x", services.ErrUnauthorized), http.StatusForbidden, ErrCodeForbidden},
		{fmt.Errorf("%w: x", services.ErrNotFound), http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("%w: x", services.ErrInvalidTransition), http.StatusConflict, ErrCodeInvalidTransition},
		{fmt.Errorf("%w: x", services.ErrDuplicateAssignment), http.StatusConflict, ErrCodeDuplicate},
		{fmt.Errorf("%w: x", services.ErrConflict), http.StatusConflict, ErrCodeConflict},
		{fmt.Errorf("%w: x", services.ErrInfrastructure), http.StatusInternalServerError, ErrCodeInternal},
		{errors.New("mystery"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		status, code := statusFor(services.KindOf(tc.err))
		if status != tc.status || code != tc.code {
			t.Errorf("%v: got (%d,%s) want (%d,%s)", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestSubmitResearch_Multipart(t *testing.T) {
	f := newFixture()
	ct, body := multipartBody(t, `{"title":"Graphs","type":"article","language":"en"}`, "", map[string]string{"paper.pdf": "%PDF"})

	w := f.do(t, http.MethodPost, "/research", "u1", ct, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	if f.research.gotActor != "u1" || f.research.gotIn.Title != "Graphs" {
		t.Fatalf("service got actor=%q in=%+v", f.research.gotActor, f.research.gotIn)
	}
	if len(f.research.gotFiles) != 1 || f.research.gotFiles[0].Name != "paper.pdf" || string(f.research.gotFiles[0].Data) != "%PDF" {
		t.Fatalf("files=%+v", f.research.gotFiles)
	}
	var res domain.Research
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Status != domain.StatusSubmitted {
		t.Fatalf("status=%s", res.Status)
	}
}

func TestSubmitResearch_SlotApplied(t *testing.T) {
	f := newFixture()
	ct, body := multipartBody(t, `{"title":"x"}`, "supplement", map[string]string{"data.csv": "a,b"})
	if w := f.do(t, http.MethodPost, "/research", "u1", ct, body); w.Code != http.StatusCreated {
		t.Fatalf("code=%d", w.Code)
	}
	if f.research.gotFiles[0].Slot != "supplement" {
		t.Fatalf("slot=%q", f.research.gotFiles[0].Slot)
	}
}

func TestSubmitResearch_RequiresActorAndMultipart(t *testing.T) {
	f := newFixture()
	ct, body := multipartBody(t, `{"title":"x"}`, "", nil)

	if w := f.do(t, http.MethodPost, "/research", "", ct, body); w.Code != http.StatusUnauthorized {
		t.Fatalf("no actor: code=%d", w.Code)
	}
	w := f.doJSON(t, http.MethodPost, "/research", "u1", map[string]string{"title": "x"})
	if w.Code != http.StatusBadRequest || decodeErr(t, w).Code != ErrCodeBadRequest {
		t.Fatalf("json body: code=%d body=%s", w.Code, w.Body.String())
	}
	ct, body = multipartBody(t, `{not json`, "", nil)
	if w := f.do(t, http.MethodPost, "/research", "u1", ct, body); w.Code != http.StatusBadRequest {
		t.Fatalf("bad payload: code=%d", w.Code)
	}
}

func TestSubmitResearch_ValidationFromService(t *testing.T) {
	f := newFixture()
	f.research.err = fmt.Errorf("%w: at least one author is required", services.ErrValidation)
	ct, body := multipartBody(t, `{"title":"x"}`, "", nil)

	w := f.do(t, http.MethodPost, "/research", "u1", ct, body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code=%d", w.Code)
	}
	e := decodeErr(t, w)
	if e.Code != ErrCodeValidation || !strings.Contains(e.Message, "author") || e.RequestID == "" {
		t.Fatalf("body=%+v", e)
	}
}

func TestUpdateResearch_JSONAndConflict(t *testing.T) {
	f := newFixture()
	w := f.doJSON(t, http.MethodPut, "/research/r1", "u1", services.ResearchInput{Title: "New", Version: 3})
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	if f.research.gotIn.Version != 3 || len(f.research.gotFiles) != 0 {
		t.Fatalf("in=%+v files=%d", f.research.gotIn, len(f.research.gotFiles))
	}

	f.research.err = fmt.Errorf("%w: research r1", services.ErrConflict)
	w = f.doJSON(t, http.MethodPut, "/research/r1", "u1", services.ResearchInput{Title: "New", Version: 2})
	if w.Code != http.StatusConflict || decodeErr(t, w).Code != ErrCodeConflict {
		t.Fatalf("conflict: code=%d body=%s", w.Code, w.Body.String())
	}
}

func TestDeleteResearch_NoContentAndForbidden(t *testing.T) {
	f := newFixture()
	if w := f.do(t, http.MethodDelete, "/research/r1", "u1", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("code=%d", w.Code)
	}
	f.research.err = fmt.Errorf("%w: only the submitter", services.ErrUnauthorized)
	w := f.do(t, http.MethodDelete, "/research/r1", "u2", "", nil)
	if w.Code != http.StatusForbidden || decodeErr(t, w).Code != ErrCodeForbidden {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
}

func TestGetResearch_IncludesAuthorsAndFiles(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodGet, "/research/r1?include_inactive=true", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d", w.Code)
	}
	var res domain.Research
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Authors) != 1 || len(res.Files) != 1 || !f.research.gotInactive {
		t.Fatalf("res=%+v inactive=%v", res, f.research.gotInactive)
	}

	f.research.err = fmt.Errorf("%w: research r9", services.ErrNotFound)
	if w := f.do(t, http.MethodGet, "/research/r9", "", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing: code=%d", w.Code)
	}
}

func TestSetFileActive(t *testing.T) {
	f := newFixture()
	w := f.doJSON(t, http.MethodPut, "/files/f1/active", "u1", map[string]bool{"active": false})
	if w.Code != http.StatusNoContent {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	if f.research.gotActive == nil || *f.research.gotActive {
		t.Fatalf("active=%v", f.research.gotActive)
	}
	if w := f.doJSON(t, http.MethodPut, "/files/f1/active", "u1", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing field: code=%d", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/files/f1", "u1", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: code=%d", w.Code)
	}
}

func TestChangeStatus(t *testing.T) {
	f := newFixture()
	w := f.doJSON(t, http.MethodPost, "/research/r1/status", "m1", ChangeStatusRequest{Status: domain.StatusUnderReview, Notes: "  ok  "})
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d", w.Code)
	}
	if f.workflow.gotTo != domain.StatusUnderReview || f.workflow.gotNotes != "ok" {
		t.Fatalf("to=%s notes=%q", f.workflow.gotTo, f.workflow.gotNotes)
	}

	f.workflow.err = fmt.Errorf("%w: accepted -> under_review", services.ErrInvalidTransition)
	w = f.doJSON(t, http.MethodPost, "/research/r1/status", "m1", ChangeStatusRequest{Status: domain.StatusUnderReview})
	if w.Code != http.StatusConflict || decodeErr(t, w).Code != ErrCodeInvalidTransition {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}

	if w := f.doJSON(t, http.MethodPost, "/research/r1/status", "m1", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty: code=%d", w.Code)
	}
}

func TestAssignTrackAndHistories(t *testing.T) {
	f := newFixture()
	w := f.doJSON(t, http.MethodPost, "/research/r1/track", "m1", AssignTrackRequest{Track: " ml "})
	if w.Code != http.StatusOK || f.tracks.gotTrack != "ml" {
		t.Fatalf("code=%d track=%q", w.Code, f.tracks.gotTrack)
	}
	if w := f.do(t, http.MethodGet, "/research/r1/history", "", "", nil); w.Code != http.StatusOK {
		t.Fatalf("history: code=%d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/research/r1/track-history", "", "", nil); w.Code != http.StatusOK {
		t.Fatalf("track-history: code=%d", w.Code)
	}
}

func TestAssignReviewer(t *testing.T) {
	f := newFixture()
	w := f.doJSON(t, http.MethodPost, "/research/r1/reviewers", "m1", AssignReviewerRequest{ReviewerID: "rev1", DeadlineDays: 7})
	if w.Code != http.StatusCreated || f.reviews.gotDays != 7 {
		t.Fatalf("code=%d days=%d", w.Code, f.reviews.gotDays)
	}

	f.reviews.err = fmt.Errorf("%w: rev1", services.ErrDuplicateAssignment)
	w = f.doJSON(t, http.MethodPost, "/research/r1/reviewers", "m1", AssignReviewerRequest{ReviewerID: "rev1"})
	if w.Code != http.StatusConflict || decodeErr(t, w).Code != ErrCodeDuplicate {
		t.Fatalf("dup: code=%d body=%s", w.Code, w.Body.String())
	}

	if w := f.doJSON(t, http.MethodPost, "/research/r1/reviewers", "m1", map[string]int{"deadline_days": -1}); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid: code=%d", w.Code)
	}
}

func TestSubmitDecision_JSONAndMultipart(t *testing.T) {
	f := newFixture()
	in := services.DecisionInput{
		Scores:   domain.Scores{Originality: 8, Methodology: 7, Clarity: 9, Significance: 6, References: 5},
		Decision: domain.DecisionAcceptAsIs,
	}
	w := f.doJSON(t, http.MethodPost, "/reviews/rv1/decision", "rev1", in)
	if w.Code != http.StatusOK || f.reviews.gotIn.Scores.Clarity != 9 {
		t.Fatalf("code=%d in=%+v", w.Code, f.reviews.gotIn)
	}

	ct, body := multipartBody(t, `{"decision":"reject","is_draft":true}`, "", map[string]string{"notes.txt": "see attached"})
	w = f.do(t, http.MethodPost, "/reviews/rv1/decision", "rev1", ct, body)
	if w.Code != http.StatusOK {
		t.Fatalf("multipart: code=%d body=%s", w.Code, w.Body.String())
	}
	if !f.reviews.gotIn.Draft || f.reviews.gotIn.Decision != domain.DecisionReject || len(f.reviews.gotFiles) != 1 {
		t.Fatalf("in=%+v files=%d", f.reviews.gotIn, len(f.reviews.gotFiles))
	}
}

func TestReadEndpoints(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodGet, "/research/r1/score", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("score: code=%d", w.Code)
	}
	var sum services.ScoreSummary
	_ = json.Unmarshal(w.Body.Bytes(), &sum)
	if sum.Rounded != 7.13 || sum.CompletedReviews != 2 {
		t.Fatalf("sum=%+v", sum)
	}

	if w := f.do(t, http.MethodGet, "/research/r1/reviews", "", "", nil); w.Code != http.StatusOK {
		t.Fatalf("reviews: code=%d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/reviews/overdue?track=ml&reviewer_id=rev1", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("overdue: code=%d", w.Code)
	}
	if f.reviews.gotFilter != (repo.ReviewFilter{Track: "ml", ReviewerID: "rev1"}) {
		t.Fatalf("filter=%+v", f.reviews.gotFilter)
	}
}

func TestSuggestReviewers_ClampsK(t *testing.T) {
	f := newFixture()
	for q, want := range map[string]int{"": defaultSuggestions, "?k=0": 1, "?k=3": 3, "?k=999": maxSuggestions, "?k=abc": defaultSuggestions} {
		if w := f.do(t, http.MethodGet, "/research/r1/reviewer-suggestions"+q, "", "", nil); w.Code != http.StatusOK {
			t.Fatalf("%q: code=%d", q, w.Code)
		}
		if f.reviews.gotK != want {
			t.Errorf("%q: k=%d want %d", q, f.reviews.gotK, want)
		}
	}
}

func TestInfrastructureErrorIsMasked(t *testing.T) {
	f := newFixture()
	f.reviews.err = fmt.Errorf("%w: dial tcp 10.0.0.5:5432: refused", services.ErrInfrastructure)

	w := f.do(t, http.MethodGet, "/research/r1/reviews", "", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code=%d", w.Code)
	}
	e := decodeErr(t, w)
	if e.Code != ErrCodeInternal || strings.Contains(e.Message, "10.0.0.5") {
		t.Fatalf("leaked: %+v", e)
	}
}

func TestInvalidActorHeader(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodDelete, "/research/r1", "bad actor!", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code=%d", w.Code)
	}
}
