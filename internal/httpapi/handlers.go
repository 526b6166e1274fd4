package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/roulette-backend/internal/engine"
	"github.com/DoyleJ11/roulette-backend/internal/game"
	"github.com/DoyleJ11/roulette-backend/pkg/types"
)

// Defaults fill in session settings a create request leaves out.
type Defaults struct {
	EntryFee   int64
	MaxPlayers int
}

// createSessionRequest leaves fields nil when the client omitted them, so
// an explicit zero still reaches validation.
type createSessionRequest struct {
	HostID     string `json:"host_id"`
	EntryFee   *int64 `json:"entry_fee,omitempty"`
	MaxPlayers *int   `json:"max_players,omitempty"`
}

type accountRequest struct {
	AccountID string `json:"account_id"`
}

type joinResponse struct {
	SessionID string `json:"session_id"`
	TurnIndex int    `json:"turn_index"`
}

type balanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
}

func CreateSession(svc *game.Service, d Defaults) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if !decode(w, r, &req) {
			return
		}
		if req.HostID == "" {
			badRequest(w, "host_id is required")
			return
		}
		fee, maxPlayers := d.EntryFee, d.MaxPlayers
		if req.EntryFee != nil {
			fee = *req.EntryFee
		}
		if req.MaxPlayers != nil {
			maxPlayers = *req.MaxPlayers
		}

		sess, err := svc.CreateSession(r.Context(), chi.URLParam(r, "room"), req.HostID, fee, maxPlayers)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, game.View(engine.State{Session: sess}))
	}
}

func ActiveSession(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := svc.ActiveSession(r.Context(), chi.URLParam(r, "room"))
		if err != nil {
			writeError(w, err)
			return
		}
		if sess == nil {
			writeJSON(w, http.StatusNotFound, types.Error{Code: "no_active_session", Kind: string(engine.KindState), Message: "room has no active session"})
			return
		}
		st, err := svc.Snapshot(r.Context(), sess.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, game.View(st))
	}
}

func JoinableSessions(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := svc.JoinableSessions(r.Context(), chi.URLParam(r, "room"))
		if err != nil {
			writeError(w, err)
			return
		}
		views := make([]types.SessionView, 0, len(sessions))
		for _, sess := range sessions {
			st, err := svc.Snapshot(r.Context(), sess.ID)
			if err != nil {
				writeError(w, err)
				return
			}
			views = append(views, game.View(st))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func JoinRoom(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := decodeAccount(w, r)
		if !ok {
			return
		}
		sess, turn, err := svc.JoinRoom(r.Context(), chi.URLParam(r, "room"), account)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, joinResponse{SessionID: sess.ID, TurnIndex: turn})
	}
}

func Join(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := decodeAccount(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		turn, err := svc.Join(r.Context(), id, account)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, joinResponse{SessionID: id, TurnIndex: turn})
	}
}

func Start(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := svc.Start(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		st, err := svc.Snapshot(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, game.View(st))
	}
}

// Draw answers 202 when the draw ended the game but the prize is still
// being credited.
func Draw(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := decodeAccount(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		o, err := svc.Draw(r.Context(), id, account)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, game.ToOutcome(id, o))
		case errors.Is(err, engine.ErrSettlementPending) && o.Round > 0:
			writeJSON(w, http.StatusAccepted, game.ToOutcome(id, o))
		default:
			writeError(w, err)
		}
	}
}

func Close(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := decodeAccount(w, r)
		if !ok {
			return
		}
		if err := svc.CloseSession(r.Context(), chi.URLParam(r, "id"), account); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func GetSession(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Snapshot(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, game.View(st))
	}
}

func Balance(svc *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := chi.URLParam(r, "id")
		bal, err := svc.Balance(r.Context(), account)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, balanceResponse{AccountID: account, Balance: bal})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "bad json")
		return false
	}
	return true
}

func decodeAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req accountRequest
	if !decode(w, r, &req) {
		return "", false
	}
	if req.AccountID == "" {
		badRequest(w, "account_id is required")
		return "", false
	}
	return req.AccountID, true
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, types.Error{Code: "bad_request", Kind: string(engine.KindValidation), Message: msg})
}

// StatusFor maps an error to the response code of its kind.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, engine.ErrSettlementPending):
		return http.StatusServiceUnavailable
	}
	switch engine.Kind(err) {
	case engine.KindValidation:
		return http.StatusBadRequest
	case engine.KindState:
		return http.StatusConflict
	case engine.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), game.ErrorBody(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
