package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/avvvet/rockefeller-services/internal/relay"
	"github.com/avvvet/rockefeller-services/internal/room"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	rooms     *room.Manager
	defaults  room.Config
	tokens    *relay.Signer
	tokenAuth *jwtauth.JWTAuth
	port      string
}

func NewHandler(rooms *room.Manager, defaults room.Config, tokens *relay.Signer, jwtSecret, port string) *Handler {
	return &Handler{
		rooms:     rooms,
		defaults:  defaults,
		tokens:    tokens,
		tokenAuth: jwtauth.New("HS256", []byte(jwtSecret), nil),
		port:      port,
	}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

// errorResponse maps room error kinds onto HTTP status codes.
func (h *Handler) errorResponse(w http.ResponseWriter, err error) {
	rsp := Response{Message: "request failed", Error: err.Error()}

	var already *room.AlreadyInRoomError
	switch {
	case errors.As(err, &already):
		rsp.Code = http.StatusConflict
		rsp.Data = map[string]string{"player_id": already.PlayerID, "room_id": already.RoomID}
	case errors.Is(err, room.ErrNotFound):
		rsp.Code = http.StatusNotFound
	case errors.Is(err, room.ErrRoomFull):
		rsp.Code = http.StatusConflict
	case errors.Is(err, room.ErrInvalidState), errors.Is(err, room.ErrInvalidConfig):
		rsp.Code = http.StatusBadRequest
	default:
		log.Errorf("internal error: %s", err)
		rsp.Code = http.StatusInternalServerError
	}

	h.CreateResponse(w, rsp)
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string, err error) {
	rsp := Response{Message: msg, Code: http.StatusBadRequest}
	if err != nil {
		rsp.Error = err.Error()
	}
	h.CreateResponse(w, rsp)
}

// decode reads an optional JSON body into v.
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

type configRequest struct {
	EvenBuild    *bool `json:"even_build"`
	StartingCash *int  `json:"starting_cash"`
	MaxPlayers   *int  `json:"max_players"`
}

// apply overlays the fields the client sent onto the service defaults.
func (c *configRequest) apply(cfg room.Config) room.Config {
	if c == nil {
		return cfg
	}
	if c.EvenBuild != nil {
		cfg.EvenBuild = *c.EvenBuild
	}
	if c.StartingCash != nil {
		cfg.StartingCash = *c.StartingCash
	}
	if c.MaxPlayers != nil {
		cfg.MaxPlayers = *c.MaxPlayers
	}
	return cfg
}

func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Name         string         `json:"name"`
		HostName     string         `json:"host_name"`
		HostPlayerID string         `json:"host_player_id"`
		Config       *configRequest `json:"config"`
	}
	if err := decode(r, &request); err != nil {
		h.badRequest(w, "invalid create room request", err)
		return
	}

	created, host, err := h.rooms.CreateRoom(room.CreateRequest{
		Name:         request.Name,
		HostName:     request.HostName,
		HostPlayerID: request.HostPlayerID,
		Config:       request.Config.apply(h.defaults),
	})
	if err != nil {
		h.errorResponse(w, err)
		return
	}

	h.CreateResponse(w, Response{
		Message: "room created",
		Code:    http.StatusCreated,
		Data:    map[string]interface{}{"room": created, "player": host},
	})
}

func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	var status room.Status
	if q := r.URL.Query().Get("status"); q != "" {
		st, err := room.ParseStatus(q)
		if err != nil {
			h.badRequest(w, "invalid status filter", err)
			return
		}
		status = st
	}

	rooms := h.rooms.ListRooms(status)
	for _, rm := range rooms {
		rm.GameState = nil // listing stays small
	}

	h.CreateResponse(w, Response{Message: "rooms", Code: http.StatusOK, Data: rooms})
}

func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := h.rooms.GetRoom(chi.URLParam(r, "roomID"))
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "room", Code: http.StatusOK, Data: rm})
}

func (h *Handler) GetPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.rooms.PlayersInRoom(chi.URLParam(r, "roomID"))
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "players", Code: http.StatusOK, Data: players})
}

func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PlayerName string `json:"player_name"`
		PlayerID   string `json:"player_id"`
	}
	if err := decode(r, &request); err != nil {
		h.badRequest(w, "invalid join request", err)
		return
	}

	p, err := h.rooms.JoinRoom(chi.URLParam(r, "roomID"), room.JoinRequest{
		PlayerName: request.PlayerName,
		PlayerID:   request.PlayerID,
	})
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "joined", Code: http.StatusOK, Data: p})
}

func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PlayerID string `json:"player_id"`
	}
	if err := decode(r, &request); err != nil {
		h.badRequest(w, "invalid leave request", err)
		return
	}
	if request.PlayerID == "" {
		h.badRequest(w, "player_id is required", nil)
		return
	}

	membership, err := h.rooms.LeaveRoom(chi.URLParam(r, "roomID"), request.PlayerID)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "left", Code: http.StatusOK, Data: membership})
}

func (h *Handler) StartGame(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if err := h.rooms.StartGame(roomID); err != nil {
		h.errorResponse(w, err)
		return
	}
	h.roomState(w, roomID, "game started")
}

func (h *Handler) EndTurn(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if err := h.rooms.EndTurn(roomID); err != nil {
		h.errorResponse(w, err)
		return
	}
	h.roomState(w, roomID, "turn ended")
}

// roomState answers with the current snapshot; the room may already be gone
// if the last player left right after the mutation.
func (h *Handler) roomState(w http.ResponseWriter, roomID, msg string) {
	rm, err := h.rooms.GetRoom(roomID)
	if err != nil {
		h.CreateResponse(w, Response{Message: msg, Code: http.StatusOK})
		return
	}
	rm.GameState = nil
	h.CreateResponse(w, Response{Message: msg, Code: http.StatusOK, Data: rm})
}

func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.rooms.DeleteRoom(chi.URLParam(r, "roomID"))
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	deleted.GameState = nil
	h.CreateResponse(w, Response{Message: "room deleted", Code: http.StatusOK, Data: deleted})
}

// RelayToken issues a socket connection token to a current member of a room.
func (h *Handler) RelayToken(w http.ResponseWriter, r *http.Request) {
	if !h.tokens.Enabled() {
		h.CreateResponse(w, Response{Message: "relay tokens are disabled", Code: http.StatusServiceUnavailable, Error: relay.ErrNoSecret.Error()})
		return
	}

	var request struct {
		UserID string `json:"user_id"`
		RoomID string `json:"room_id"`
	}
	if err := decode(r, &request); err != nil {
		h.badRequest(w, "invalid token request", err)
		return
	}
	if request.UserID == "" || request.RoomID == "" {
		h.badRequest(w, "user_id and room_id are required", nil)
		return
	}

	rm, err := h.rooms.GetRoom(request.RoomID)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	if !slices.Contains(rm.Players, request.UserID) {
		h.CreateResponse(w, Response{Message: "player is not a member of the room", Code: http.StatusForbidden})
		return
	}

	token, expires, err := h.tokens.ConnectionToken(request.UserID, request.RoomID)
	if err != nil {
		h.errorResponse(w, err)
		return
	}

	h.CreateResponse(w, Response{
		Message: "relay token",
		Code:    http.StatusOK,
		Data:    map[string]interface{}{"token": token, "expires_at": expires.UTC().Format(time.RFC3339)},
	})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "room service is running at port " + h.port,
		Code:    http.StatusOK,
		Data:    map[string]int{"rooms": len(h.rooms.ListRooms(""))},
	})
}
