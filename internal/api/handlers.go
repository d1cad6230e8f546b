package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-partynight/internal/mirror"
	"github.com/npezzotti/go-partynight/internal/server"
	"github.com/npezzotti/go-partynight/internal/types"
)

const storeTimeout = 2 * time.Second

const (
	SyncConnected   = "connected"
	SyncDisabled    = "disabled"
	SyncUnavailable = "unavailable"
)

type HealthResponse struct {
	Status string `json:"status"`
	Sync   string `json:"sync"`
}

// PresenceResponse is a party's member list. Source is "local" when the party
// lives in this process and "mirror" when it was read back from the store.
type PresenceResponse struct {
	PartyId string         `json:"party_id"`
	HostId  string         `json:"host_id,omitempty"`
	Users   []types.Member `json:"users"`
	Source  string         `json:"source"`
}

func (s *PartyApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *PartyApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Sync: SyncDisabled}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
		defer cancel()

		if err := s.store.Ping(ctx); err != nil {
			s.log.Printf("health: sync store ping: %v", err)
			resp.Sync = SyncUnavailable
		} else {
			resp.Sync = SyncConnected
		}
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *PartyApp) partyPresence(w http.ResponseWriter, r *http.Request) {
	partyId := r.PathValue("partyId")
	if partyId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.Header().Set("Cache-Control", "no-store")

	if state, ok := s.registry.State(partyId); ok {
		s.writeJson(w, http.StatusOK, PresenceResponse{
			PartyId: state.PartyId,
			HostId:  state.HostId,
			Users:   state.Users,
			Source:  "local",
		})
		return
	}

	if s.store == nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	raw, err := s.store.Get(ctx, mirror.MembersKey(partyId))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, mirror.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			s.log.Printf("presence: read party %q from store: %v", partyId, err)
			errResp = NewServiceUnavailableError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var users []types.Member
	if err := json.Unmarshal(raw, &users); err != nil {
		s.log.Printf("presence: decode party %q: %v", partyId, err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, PresenceResponse{
		PartyId: partyId,
		Users:   users,
		Source:  "mirror",
	})
}

// checkOrigin allows requests without an Origin header and those from an
// allowed origin.
func (s *PartyApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	return slices.Contains(s.allowedOrigins, origin)
}

func (s *PartyApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client, err := server.NewClient(conn, s.ps, s.log)
	if err != nil {
		s.log.Println("new client:", err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""))
		conn.Close()
		return
	}

	s.ps.RegisterClient(client)
	go client.Write()
	go client.Read()
}
