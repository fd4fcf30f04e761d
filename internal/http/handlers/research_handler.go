// Research HTTP handlers.
//
//   - POST   /research                 (submit, multipart)
//   - PUT    /research/{id}            (edit, JSON or multipart)
//   - DELETE /research/{id}            (soft delete)
//   - GET    /research/{id}            (detail with authors and files)
//   - DELETE /files/{id}               (soft delete one file)
//   - PUT    /files/{id}/active        (toggle file visibility)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/research-review-backend/internal/services"
	"github.com/tbourn/research-review-backend/internal/utils"
)

// SetFileActiveRequest toggles file visibility.
type SetFileActiveRequest struct {
	Active *bool `json:"active" binding:"required" example:"false"`
}

// SubmitResearch godoc
// @ID          submitResearch
// @Summary     Submit research
// @Description Creates a research item in status "submitted" with its authors and files.
// @Tags        Research
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       X-Actor-ID  header    string  true   "Acting identity"
// @Param       payload     formData  string  true   "services.ResearchInput as JSON"
// @Param       files       formData  file    true   "Manuscript files"
// @Param       slot        formData  string  false  "Slot for all files (default manuscript)"
//
// @Success     201  {object}  domain.Research
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /research [post]
func (h *Handlers) SubmitResearch(c *gin.Context) {
	actor, okActor := actorID(c)
	if !okActor {
		return
	}
	if !isMultipart(c) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart/form-data body required")
		return
	}
	var in services.ResearchInput
	files, err := bindMultipart(c, &in)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	res, err := h.research.SubmitResearch(c.Request.Context(), in, files, actor)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

// UpdateResearch godoc
// @ID          updateResearch
// @Summary     Edit research
// @Description Replaces metadata and authors, optionally appending files. Only allowed while the research is editable.
// @Tags        Research
// @Accept      json,multipart/form-data
// @Produce     json
//
// @Param       X-Actor-ID  header  string                   true  "Acting identity"
// @Param       id          path    string                   true  "Research ID"
// @Param       body        body    services.ResearchInput   true  "Research payload"
//
// @Success     200  {object}  domain.Research
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /research/{id} [put]
func (h *Handlers) UpdateResearch(c *gin.Context) {
	actor, okActor := actorID(c)
	if !okActor {
		return
	}
	var (
		in    services.ResearchInput
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
	res, err := h.research.UpdateResearch(c.Request.Context(), c.Param("id"), in, files, actor)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// DeleteResearch godoc
// @ID          deleteResearch
// @Summary     Delete research
// @Tags        Research
// @Param       X-Actor-ID  header  string  true  "Acting identity"
// @Param       id          path    string  true  "Research ID"
// @Success     204
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /research/{id} [delete]
func (h *Handlers) DeleteResearch(c *gin.Context) {
	actor, okActor := actorID(c)
	if !okActor {
		return
	}
	if err := h.research.DeleteResearch(c.Request.Context(), c.Param("id"), actor); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// GetResearch godoc
// @ID          getResearch
// @Summary     Get research
// @Description Returns the research with its authors and files. Inactive files are included with include_inactive=true.
// @Tags        Research
// @Produce     json
// @Param       id                path   string  true   "Research ID"
// @Param       include_inactive  query  bool    false  "Include inactive files"
// @Success     200  {object}  domain.Research
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /research/{id} [get]
func (h *Handlers) GetResearch(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	res, err := h.research.GetResearch(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}
	authors, err := h.research.ListAuthors(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}
	includeInactive := utils.Flag(c.Query("include_inactive"))
	files, err := h.research.ListFiles(ctx, id, includeInactive)
	if err != nil {
		failErr(c, err)
		return
	}
	res.Authors = authors
	res.Files = files
	ok(c, http.StatusOK, res)
}

// DeleteFile godoc
// @ID          deleteFile
// @Summary     Delete a research file
// @Tags        Files
// @Param       X-Actor-ID  header  string  true  "Acting identity"
// @Param       id          path    string  true  "File ID"
// @Success     204
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /files/{id} [delete]
func (h *Handlers) DeleteFile(c *gin.Context) {
	actor, okActor := actorID(c)
	if !okActor {
		return
	}
	if err := h.research.DeleteFile(c.Request.Context(), c.Param("id"), actor); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// SetFileActive godoc
// @ID          setFileActive
// @Summary     Toggle file visibility
// @Tags        Files
// @Accept      json
// @Param       X-Actor-ID  header  string                          true  "Acting identity"
// @Param       id          path    string                          true  "File ID"
// @Param       body        body    handlers.SetFileActiveRequest  true  "Visibility"
// @Success     204
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /files/{id}/active [put]
func (h *Handlers) SetFileActive(c *gin.Context) {
	actor, okActor := actorID(c)
	if !okActor {
		return
	}
	var req SetFileActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "active is required")
		return
	}
	if err := h.research.SetFileActive(c.Request.Context(), c.Param("id"), *req.Active, actor); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
