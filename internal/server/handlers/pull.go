package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/roomsync/internal/server/storage"
	"github.com/iudanet/roomsync/internal/server/sync"
	"github.com/iudanet/roomsync/internal/validation"
	"github.com/iudanet/roomsync/pkg/api"
)

// PullHandler serves the HTTP catch-up path. Clients that missed pokes,
// or that just started, POST their last known cookie and get back the
// patch bringing them current.
type PullHandler struct {
	store  storage.Store
	logger *slog.Logger
}

// NewPullHandler creates the pull endpoint handler
func NewPullHandler(store storage.Store, logger *slog.Logger) *PullHandler {
	return &PullHandler{
		store:  store,
		logger: logger,
	}
}

// Pull handles POST /pull
func (h *PullHandler) Pull(w http.ResponseWriter, r *http.Request) {
	var req api.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validation.ValidateRoomID(req.RoomID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateClientID(req.ClientID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.pull(r.Context(), &req)
	if err != nil {
		h.logger.Error("pull failed",
			"room_id", req.RoomID,
			"client_id", req.ClientID,
			"error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode pull response", "error", err)
	}
}

func (h *PullHandler) pull(ctx context.Context, req *api.PullRequest) (*api.PullResponse, error) {
	var resp *api.PullResponse
	err := h.store.WithTx(ctx, func(tx storage.RoomStorage) error {
		patch, err := sync.GetPatch(ctx, tx, req.RoomID, req.BaseCookie)
		if err != nil {
			return err
		}

		cookie, err := tx.RoomVersion(ctx, req.RoomID)
		if err != nil {
			return err
		}

		// An unknown client has simply not pushed yet; its mutation
		// counter starts at zero.
		var lastMutationID int64
		record, err := tx.GetClientRecord(ctx, req.ClientID)
		switch {
		case errors.Is(err, storage.ErrClientNotFound):
		case err != nil:
			return err
		default:
			lastMutationID = record.LastMutationID
		}

		resp = &api.PullResponse{
			BaseCookie:     req.BaseCookie,
			Cookie:         cookie,
			LastMutationID: lastMutationID,
			Patch:          patch,
		}
		return nil
	})
	return resp, err
}
