package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/blockhub/internal/apperror"
	"github.com/sakif/blockhub/internal/auth"
	"github.com/sakif/blockhub/internal/model"
	"github.com/sakif/blockhub/internal/service"
)

// ContentHandler serves the CRUD, search and vote routes for one content
// kind. The server mounts one instance under /maps and one under /blocks.
type ContentHandler struct {
	kind      model.Kind
	content   *service.ContentService
	maxUpload int64
	logger    *slog.Logger
}

// NewContentHandler creates a ContentHandler for kind. maxUpload bounds the
// size of multipart create requests.
func NewContentHandler(kind model.Kind, content *service.ContentService, maxUpload int64, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{
		kind:      kind,
		content:   content,
		maxUpload: maxUpload,
		logger:    logger.With(slog.String("kind", string(kind))),
	}
}

// tagList accepts tags either as a JSON array or as one comma separated
// string.
type tagList []string

func (t *tagList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var csv string
	if err := json.Unmarshal(data, &csv); err != nil {
		return err
	}
	*t = service.ParseTags(csv)
	return nil
}

type createRequest struct {
	Title    string  `json:"title"`
	ViewLink string  `json:"viewLink"`
	Image    string  `json:"image"`
	IxID     string  `json:"ixId"`
	Tags     tagList `json:"tags"`
}

type updateRequest struct {
	Title    *string  `json:"title"`
	ViewLink *string  `json:"viewLink"`
	Image    *string  `json:"image"`
	IxID     *string  `json:"ixId"`
	Tags     *tagList `json:"tags"`
}

// idRequest is the body of delete and vote. Older clients send the id as
// mapId or blockId.
type idRequest struct {
	ID      string `json:"id"`
	MapID   string `json:"mapId"`
	BlockID string `json:"blockId"`
	Up      *bool  `json:"up"`
}

func (req idRequest) id() string {
	for _, v := range []string{req.ID, req.MapID, req.BlockID} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// HandleList returns every item, newest first.
//
// HTTP: GET /{maps|blocks}
func (h *ContentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.content.List(r.Context(), h.kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleSearch filters items by title, author and tags. Every parameter is
// optional; tags is comma separated and an item must carry all of them.
//
// HTTP: GET /{maps|blocks}/search?title=&author=&tags=
func (h *ContentHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.content.Search(r.Context(), h.kind, q.Get("title"), q.Get("author"), q.Get("tags"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleGet returns one item.
//
// HTTP: GET /{maps|blocks}/{id}
func (h *ContentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	item, err := h.content.Get(r.Context(), h.kind, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleCreate stores a new item owned by the caller.
//
// HTTP: POST /{maps|blocks}
// Auth: Required
//
// The body is either JSON or a multipart form with the same fields plus an
// optional "file" part, which is uploaded to object storage first.
func (h *ContentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Not authenticated"))
		return
	}

	var in service.CreateInput
	if isMultipart(r) {
		if err := parseMultipart(w, r, h.maxUpload); err != nil {
			writeError(w, err)
			return
		}
		in = service.CreateInput{
			Title:    r.FormValue("title"),
			ViewLink: r.FormValue("viewLink"),
			Image:    r.FormValue("image"),
			IxID:     r.FormValue("ixId"),
			Tags:     formTags(r),
		}
		file, err := formFile(r, "file")
		if err != nil {
			writeError(w, err)
			return
		}
		in.File = file
	} else {
		var req createRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		in = service.CreateInput{
			Title:    req.Title,
			ViewLink: req.ViewLink,
			Image:    req.Image,
			IxID:     req.IxID,
			Tags:     req.Tags,
		}
	}

	item, err := h.content.Create(r.Context(), h.kind, id.User, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// HandleUpdate applies a partial update. Fields missing from the body keep
// their current value.
//
// HTTP: PUT /{maps|blocks}/{id}
// Auth: Required, owner or admin
func (h *ContentHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Not authenticated"))
		return
	}

	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	in := service.UpdateInput{
		Title:    req.Title,
		ViewLink: req.ViewLink,
		Image:    req.Image,
		IxID:     req.IxID,
	}
	if req.Tags != nil {
		tags := []string(*req.Tags)
		in.Tags = &tags
	}

	item, err := h.content.Update(r.Context(), h.kind, id.User, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleDelete removes an item together with its tags and votes.
//
// HTTP: DELETE /{maps|blocks} {"id": "..."}
// Auth: Required, owner or admin
func (h *ContentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Not authenticated"))
		return
	}

	var req idRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	itemID := req.id()
	if itemID == "" {
		writeError(w, apperror.ValidationFailed("id", "Missing required fields"))
		return
	}

	if err := h.content.Delete(r.Context(), h.kind, id.User, itemID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleVote records the caller's single vote on an item.
//
// HTTP: POST /{maps|blocks}/vote {"id": "...", "up": true}
// Auth: Required
func (h *ContentHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Not authenticated"))
		return
	}

	var req idRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	itemID := req.id()
	if itemID == "" || req.Up == nil {
		writeError(w, apperror.ValidationFailed("up", "Missing required fields"))
		return
	}

	item, err := h.content.Vote(r.Context(), h.kind, id.User, itemID, *req.Up)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
