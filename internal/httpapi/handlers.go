package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hackathon-judging/internal/config"
	"github.com/DoyleJ11/hackathon-judging/internal/confirm"
	"github.com/DoyleJ11/hackathon-judging/internal/directory"
	"github.com/DoyleJ11/hackathon-judging/internal/engine"
	"github.com/DoyleJ11/hackathon-judging/internal/judging"
	"github.com/DoyleJ11/hackathon-judging/internal/planner"
	"github.com/DoyleJ11/hackathon-judging/internal/roster"
	"github.com/DoyleJ11/hackathon-judging/internal/ws"
)

const (
	HeaderOperator = "X-Operator"
	HeaderChannel  = "X-Channel"
)

var errNoOperator = errors.New("missing " + HeaderOperator + " header")

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}

func writeResult(w http.ResponseWriter, res judging.Result) {
	status := http.StatusOK
	if !res.OK {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

// request builds a judging request from the operator headers. The channel
// header scopes the command to the room that channel belongs to.
func request(ev *config.Event, r *http.Request) (judging.Request, error) {
	req := judging.Request{
		Operator: r.Header.Get(HeaderOperator),
		Room:     chi.URLParam(r, "room"),
		Team:     r.URL.Query().Get("team"),
	}
	if req.Operator == "" {
		return req, errNoOperator
	}
	if ch := r.Header.Get(HeaderChannel); ch != "" {
		room, ok := ev.RoomForChannel(ch)
		if !ok {
			room = "channel:" + ch
		}
		req.Context = room
	}
	return req, nil
}

func directoryStatus(err error) int {
	switch {
	case errors.Is(err, directory.ErrInvalidName), errors.Is(err, directory.ErrInvalidMedium):
		return http.StatusBadRequest
	case errors.Is(err, directory.ErrTeamNotFound), errors.Is(err, directory.ErrMemberNotFound):
		return http.StatusNotFound
	case errors.Is(err, directory.ErrTeamExists), errors.Is(err, directory.ErrMemberTaken), errors.Is(err, directory.ErrTracksLocked):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func CreateTeam(dir directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t directory.Team
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := dir.CreateTeam(r.Context(), t); err != nil {
			writeError(w, directoryStatus(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func ListTeams(dir directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teams, err := dir.Teams(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, teams)
	}
}

func AddMember(dir directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Member string `json:"member"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Member == "" {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := dir.AddMember(r.Context(), chi.URLParam(r, "team"), body.Member); err != nil {
			writeError(w, directoryStatus(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func RemoveMember(dir directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := dir.RemoveMember(r.Context(), chi.URLParam(r, "team"), chi.URLParam(r, "member")); err != nil {
			writeError(w, directoryStatus(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SetTracks(dir directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tracks []string `json:"tracks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := dir.SetTracks(r.Context(), chi.URLParam(r, "team"), body.Tracks); err != nil {
			writeError(w, directoryStatus(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Verify(v *roster.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if v == nil {
			http.Error(w, "no registration roster configured", http.StatusNotImplemented)
			return
		}
		var body struct {
			roster.Identity
			AccountID string `json:"account_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AccountID == "" {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		p, err := v.Verify(r.Context(), body.Identity, body.AccountID)
		switch {
		case errors.Is(err, roster.ErrNotRegistered):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, roster.ErrEmailVerified), errors.Is(err, roster.ErrAccountVerified):
			writeError(w, http.StatusConflict, err)
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
		default:
			writeJSON(w, http.StatusCreated, p)
		}
	}
}

func RunPlanner(svc *judging.Service, logDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := svc.Plan(r.Context(), chi.URLParam(r, "algorithm"), logDir)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, planner.ErrUnknownAlgorithm) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// DownloadQueue returns the live queue in the same shape UploadQueue takes.
func DownloadQueue(svc *judging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := svc.Export()
		if p == nil {
			writeError(w, http.StatusNotFound, judging.ErrNotStarted)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="judging_breakdown.json"`)
		_ = p.Encode(w)
	}
}

func UploadQueue(svc *judging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operator := r.Header.Get(HeaderOperator)
		if operator == "" {
			writeError(w, http.StatusBadRequest, errNoOperator)
			return
		}
		p, err := engine.DecodePlan(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, judging.Result{OK: false, Reason: "Judging was not started; " + err.Error() + "."})
			return
		}
		writeResult(w, svc.Load(r.Context(), operator, p))
	}
}

type roomOp func(*judging.Service, context.Context, judging.Request) judging.Result

func RoomCommand(ev *config.Event, svc *judging.Service, op roomOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := request(ev, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeResult(w, op(svc, r.Context(), req))
	}
}

func Status(svc *judging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		public := r.URL.Query().Get("public") == "1"
		s, err := svc.Status(chi.URLParam(r, "room"), public)
		switch {
		case errors.Is(err, judging.ErrNotStarted):
			writeError(w, http.StatusNotFound, err)
			return
		case errors.Is(err, engine.ErrUnknownRoom):
			writeError(w, http.StatusNotFound, err)
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(s))
	}
}

// Answer resolves a pending confirmation round on behalf of the operator
// header.
// Confirmations answers and lists open confirmation rounds.
type Confirmations interface {
	ws.Signaler
	Pending(operator string) []confirm.Prompt
}

// PendingConfirmations lists the rounds waiting on the calling operator, so
// a client without a websocket can find the round id to answer.
func PendingConfirmations(c Confirmations) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(HeaderOperator)
		if user == "" {
			writeError(w, http.StatusBadRequest, errNoOperator)
			return
		}
		writeJSON(w, http.StatusOK, c.Pending(user))
	}
}

func Answer(sig ws.Signaler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(HeaderOperator)
		if user == "" {
			writeError(w, http.StatusBadRequest, errNoOperator)
			return
		}
		var body struct {
			Signal string `json:"signal"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		s, err := confirm.ParseSignal(body.Signal)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		round := chi.URLParam(r, "round")
		switch err := sig.Signal(round, user, s); {
		case errors.Is(err, confirm.ErrUnknownRound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, confirm.ErrWrongOperator):
			writeError(w, http.StatusForbidden, err)
		case err != nil:
			log.Error("signal failed", zap.String("round", round), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err)
		default:
			w.WriteHeader(http.StatusAccepted)
		}
	}
}
