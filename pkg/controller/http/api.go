package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
)

type apiHandler struct {
	repo     interfaces.Repository
	approval interfaces.ApprovalUseCase
	trigger  interfaces.RunTrigger
}

type editRequest struct {
	Audience string `json:"audience"`
	Text     string `json:"text"`
	Editor   string `json:"editor"`
}

func (h *apiHandler) triggerRun(w http.ResponseWriter, r *http.Request) {
	repoID := types.RepositoryID(chi.URLParam(r, "id"))
	run, err := h.trigger.Trigger(r.Context(), repoID, "api")
	if err != nil {
		if errors.Is(err, model.ErrRunCoalesced) {
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status": "coalesced",
			})
			return
		}
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (h *apiHandler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.repo.GetRun(r.Context(), types.RunID(chi.URLParam(r, "id")))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *apiHandler) getDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.repo.GetDraft(r.Context(), types.DraftID(chi.URLParam(r, "id")))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (h *apiHandler) editDraft(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, r, goerr.Wrap(model.ErrInvalidArgument, "invalid edit request", goerr.V("cause", err.Error())))
		return
	}

	h.transition(w, r, func(ctx context.Context, id types.DraftID) (*model.Draft, error) {
		return h.approval.Edit(ctx, id, &model.EditRequest{
			Audience: model.Audience(req.Audience),
			Text:     req.Text,
			Editor:   req.Editor,
		})
	})
}

func (h *apiHandler) approveDraft(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.approval.Approve)
}

func (h *apiHandler) rejectDraft(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.approval.Reject)
}

func (h *apiHandler) regenerateDraft(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.approval.Regenerate)
}

func (h *apiHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id types.DraftID) (*model.Draft, error)) {
	draft, err := fn(r.Context(), types.DraftID(chi.URLParam(r, "id")))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}
