package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"podcast-player/internal/models"
	"podcast-player/internal/playback"
)

type loadRequest struct {
	EpisodeIDs []string `json:"episode_ids"`
	Channel    string   `json:"channel"`
	Index      int      `json:"index"`
}

type seekRequest struct {
	PositionSeconds float64 `json:"position_seconds"`
}

func (h *serverHandler) handlePlayer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, http.StatusOK, h.svc.Player.Snapshot())
}

// handlePlayerLoad resolves a playlist either from episode IDs across all
// subscriptions or from a single channel, then loads the entry at index.
func (h *serverHandler) handlePlayerLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("decode load request: %w", err))
		return
	}

	var playlist []models.Episode
	switch {
	case req.Channel != "":
		if !h.svc.Subscriptions.HasFeed(req.Channel) {
			h.writeError(w, http.StatusNotFound, fmt.Errorf("not subscribed to channel: %s", req.Channel))
			return
		}
		channels := h.svc.Feeds.Channels(r.Context(), []string{req.Channel})
		if len(channels) == 0 {
			h.writeJSON(w, http.StatusBadGateway, errorBody{
				Error:    "channel unavailable: " + req.Channel,
				Category: string(playback.CategoryNetwork),
			})
			return
		}
		playlist = channels[0].Episodes
	case len(req.EpisodeIDs) > 0:
		byID := map[string]models.Episode{}
		for _, ep := range h.svc.Feeds.Episodes(r.Context(), h.svc.Subscriptions.Feeds()) {
			if _, seen := byID[ep.ID]; !seen && ep.ID != "" {
				byID[ep.ID] = ep
			}
		}
		for _, id := range req.EpisodeIDs {
			ep, ok := byID[id]
			if !ok {
				h.writeError(w, http.StatusNotFound, fmt.Errorf("episode not found: %s", id))
				return
			}
			playlist = append(playlist, ep)
		}
	default:
		h.writeError(w, http.StatusBadRequest, errors.New("episode_ids or channel is required"))
		return
	}

	if err := h.svc.Player.Load(r.Context(), playlist, req.Index); err != nil {
		h.writePlayerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.svc.Player.Snapshot())
}

func (h *serverHandler) handlePlayerSeek(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("decode seek request: %w", err))
		return
	}

	position := time.Duration(req.PositionSeconds * float64(time.Second))
	if err := h.svc.Player.Seek(r.Context(), position); err != nil {
		h.writePlayerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.svc.Player.Snapshot())
}

func (h *serverHandler) handlePlayerAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	var err error
	switch r.PathValue("action") {
	case "play":
		err = h.svc.Player.Play(ctx)
	case "pause":
		err = h.svc.Player.Pause(ctx)
	case "toggle":
		err = h.svc.Player.Toggle(ctx)
	case "next":
		err = h.svc.Player.Next(ctx)
	case "previous":
		err = h.svc.Player.Previous(ctx)
	case "close":
		err = h.svc.Player.Close()
	case "minimize":
		err = h.svc.Player.Minimize()
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if err != nil {
		h.writePlayerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.svc.Player.Snapshot())
}

func (h *serverHandler) writePlayerError(w http.ResponseWriter, err error) {
	var loadErr *playback.LoadError
	if errors.As(err, &loadErr) {
		status := http.StatusInternalServerError
		switch loadErr.Category {
		case playback.CategoryData:
			status = http.StatusBadRequest
		case playback.CategoryNetwork:
			status = http.StatusBadGateway
		}
		h.writeJSON(w, status, errorBody{Error: loadErr.Err.Error(), Category: string(loadErr.Category)})
		return
	}

	switch {
	case errors.Is(err, playback.ErrNotLoaded),
		errors.Is(err, playback.ErrAdPlaying),
		errors.Is(err, playback.ErrNoAdjacentEpisode):
		h.writeError(w, http.StatusConflict, err)
	default:
		h.logger.Printf("player command failed: %v", err)
		h.writeError(w, http.StatusInternalServerError, err)
	}
}
