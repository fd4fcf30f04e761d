package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/research-review-backend/internal/domain"
)

// ChangeStatusRequest is the payload for a status transition.
type ChangeStatusRequest struct {
	Status domain.Status `json:"status" binding:"required" example:"under_review"`
	Notes  string        `json:"notes" example:"desk check passed"`
}

// AssignTrackRequest is the payload for a track assignment.
type AssignTrackRequest struct {
	Track string `json:"track" binding:"required" example:"machine-learning"`
	Notes string `json:"notes"`
}

// ChangeStatus godoc
// @ID          changeStatus
// @Summary     Change research status
// @Description Applies one legal transition of the status graph and records it in the history.
// @Tags        Workflow
// @Accept      json
// @Produce     json
// @Param       X-Actor-ID  header  string                         true  "Acting identity"
// @Param       id          path    string                         true  "Research ID"
// @Param       body        body    handlers.ChangeStatusRequest  true  "Target status"
// @Success     200  {object}  domain.Research
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Invalid transition or concurrent modification"
// @Router      /research/{id}/status [post]
func (h *Handlers) ChangeStatus(c *gin.Context) {
	actor, okActor := actorID(c)
	if !okActor {
		return
	}
	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status is required")
		return
	}
	res, err := h.workflow.ChangeStatus(c.Request.Context(), c.Param("id"), req.Status, actor, strings.TrimSpace(req.Notes))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// AssignTrack godoc
// @ID          assignTrack
// @Summary     Assign research to a track
// @Tags        Workflow
// @Accept      json
// @Produce     json
// @Param       X-Actor-ID  header  string                        true  "Acting identity"
// @Param       id          path    string                        true  "Research ID"
// @Param       body        body    handlers.AssignTrackRequest  true  "Track"
// @Success     200  {object}  domain.Research
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /research/{id}/track [post]
func (h *Handlers) AssignTrack(c *gin.Context) {
	actor, okActor := actorID(c)
	if !okActor {
		return
	}
	var req AssignTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "track is required")
		return
	}
	res, err := h.tracks.AssignTrack(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.Track), actor, strings.TrimSpace(req.Notes))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// StatusHistory godoc
// @ID          statusHistory
// @Summary     Status history
// @Description Returns every transition of the research, oldest first.
// @Tags        Workflow
// @Produce     json
// @Param       id  path  string  true  "Research ID"
// @Success     200  {array}   domain.StatusHistory
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /research/{id}/history [get]
func (h *Handlers) StatusHistory(c *gin.Context) {
	rows, err := h.workflow.GetStatusHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rows)
}

// TrackHistory godoc
// @ID          trackHistory
// @Summary     Track history
// @Tags        Workflow
// @Produce     json
// @Param       id  path  string  true  "Research ID"
// @Success     200  {array}   domain.TrackHistory
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /research/{id}/track-history [get]
func (h *Handlers) TrackHistory(c *gin.Context) {
	rows, err := h.tracks.GetTrackHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rows)
}
