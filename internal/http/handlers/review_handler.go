package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/research-review-backend/internal/repo"
	"github.com/tbourn/research-review-backend/internal/services"
	"github.com/tbourn/research-review-backend/internal/utils"
)

const (
	defaultSuggestions = 5
	maxSuggestions     = 50
)

// AssignReviewerRequest is the payload for a reviewer assignment.
// DeadlineDays 0 uses the configured default.
type AssignReviewerRequest struct {
	ReviewerID   string `json:"reviewer_id" binding:"required" example:"rev-42"`
	DeadlineDays int    `json:"deadline_days" binding:"gte=0" example:"14"`
}

// AssignReviewer godoc
// @ID          assignReviewer
// @Summary     Assign a reviewer
// @Tags        Reviews
// @Accept      json
// @Produce     json
// @Param       X-Actor-ID  header  string                           true  "Acting identity"
// @Param       id          path    string                           true  "Research ID"
// @Param       body        body    handlers.AssignReviewerRequest  true  "Assignment"
// @Success     201  {object}  domain.Review
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Reviewer already assigned"
// @Router      /research/{id}/reviewers [post]
func (h *Handlers) AssignReviewer(c *gin.Context) {
	actor, okActor := actorID(c)
	if !okActor {
		return
	}
	var req AssignReviewerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reviewer_id is required")
		return
	}
	rv, err := h.reviews.AssignReviewer(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.ReviewerID), req.DeadlineDays, actor)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, rv)
}

// SubmitDecision godoc
// @ID          submitReviewDecision
// @Summary     Submit a review decision
// @Description Records scores and a decision. With is_draft=true the review stays open.
// @Description Attachments may be sent as multipart "files" alongside a JSON "payload".
// @Tags        Reviews
// @Accept      json,multipart/form-data
// @Produce     json
// @Param       X-Actor-ID  header  string                   true  "Acting identity"
// @Param       id          path    string                   true  "Review ID"
// @Param       body        body    services.DecisionInput   true  "Decision"
// @Success     200  {object}  domain.Review
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /reviews/{id}/decision [post]
func (h *Handlers) SubmitDecision(c *gin.Context) {
	actor, okActor := actorID(c)
	if !okActor {
		return
	}
	var (
		in    services.DecisionInput
		files []services.Upload
		err   error
	)
	if isMultipart(c) {
		files, err = bindMultipart(c, &in)
	} else {
		err = c.ShouldBindJSON(&in)
	}
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	rv, err := h.reviews.SubmitReviewDecision(c.Request.Context(), c.Param("id"), in, files, actor)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rv)
}

// Score godoc
// @ID          researchScore
// @Summary     Average review score
// @Tags        Reviews
// @Produce     json
// @Param       id  path  string  true  "Research ID"
// @Success     200  {object}  services.ScoreSummary
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /research/{id}/score [get]
func (h *Handlers) Score(c *gin.Context) {
	sum, err := h.reviews.AverageReviewScore(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sum)
}

// ListReviews godoc
// @ID          listReviews
// @Summary     Reviews of a research item
// @Tags        Reviews
// @Produce     json
// @Param       id  path  string  true  "Research ID"
// @Success     200  {array}   domain.Review
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /research/{id}/reviews [get]
func (h *Handlers) ListReviews(c *gin.Context) {
	rows, err := h.reviews.ListReviews(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rows)
}

// OverdueReviews godoc
// @ID          overdueReviews
// @Summary     Overdue reviews
// @Description Lists open reviews past their deadline, optionally filtered.
// @Tags        Reviews
// @Produce     json
// @Param       track        query  string  false  "Track"
// @Param       reviewer_id  query  string  false  "Reviewer"
// @Param       research_id  query  string  false  "Research"
// @Success     200  {array}   domain.Review
// @Router      /reviews/overdue [get]
func (h *Handlers) OverdueReviews(c *gin.Context) {
	f := repo.ReviewFilter{
		ResearchID: strings.TrimSpace(c.Query("research_id")),
		ReviewerID: strings.TrimSpace(c.Query("reviewer_id")),
		Track:      strings.TrimSpace(c.Query("track")),
	}
	rows, err := h.reviews.OverdueReviews(c.Request.Context(), f)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rows)
}

// SuggestReviewers godoc
// @ID          suggestReviewers
// @Summary     Reviewer suggestions
// @Description Ranks reviewers by expertise overlap with the research keywords.
// @Tags        Reviews
// @Produce     json
// @Param       id  path   string  true   "Research ID"
// @Param       k   query  int     false  "Max suggestions (1..50, default 5)"
// @Success     200  {array}   services.ReviewerSuggestion
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /research/{id}/reviewer-suggestions [get]
func (h *Handlers) SuggestReviewers(c *gin.Context) {
	k := utils.IntInRange(c.Query("k"), defaultSuggestions, 1, maxSuggestions)
	out, err := h.reviews.SuggestReviewers(c.Request.Context(), c.Param("id"), k)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}
