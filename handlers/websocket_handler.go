package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/unl5k/race-timing-system/live"
	"github.com/unl5k/race-timing-system/middleware"
	"github.com/unl5k/race-timing-system/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// В продакшене здесь должна быть проверка Origin,
		// чтобы разрешать подключения только с доверенных доменов.
		return true
	},
}

// Причины закрытия handshake-а живого канала.
const (
	CloseMissingToken        = 4001
	CloseInvalidToken        = 4002
	CloseJudgeMismatch       = 4003
	CloseNoActiveCompetition = 4004
)

type WebSocketHandler struct {
	hub                *live.Hub
	authService        services.AuthService
	competitionService services.CompetitionService
	jwtSecret          []byte
}

func NewWebSocketHandler(
	hub *live.Hub,
	authService services.AuthService,
	competitionService services.CompetitionService,
	jwtSecret string,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:                hub,
		authService:        authService,
		competitionService: competitionService,
		jwtSecret:          []byte(jwtSecret),
	}
}

// closeWithCode завершает уже апгрейднутое соединение прикладным кодом.
// Судейские коды (4001-4004) видны клиенту только после апгрейда, поэтому
// вся проверка токена выполняется на открытом соединении.
func closeWithCode(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	conn.Close()
}

// ServeJudge обрабатывает подключение судьи: /ws/judges/{judgeID}?token=...
func (h *WebSocketHandler) ServeJudge(w http.ResponseWriter, r *http.Request) {
	judgeID, err := getIDFromURL(r, "judgeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection for judge %d: %v", judgeID, err)
		return
	}

	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		closeWithCode(conn, CloseMissingToken, "authorization token is required")
		return
	}

	claims, err := middleware.ValidateToken(tokenString, h.jwtSecret)
	if err != nil {
		closeWithCode(conn, CloseInvalidToken, "invalid or expired token")
		return
	}

	tokenJudgeID, err := middleware.JudgeIDFromClaims(claims)
	if err != nil {
		closeWithCode(conn, CloseInvalidToken, "invalid or expired token")
		return
	}
	if tokenJudgeID != judgeID {
		closeWithCode(conn, CloseJudgeMismatch, "token does not match the requested judge")
		return
	}

	if _, err := h.authService.ActiveJudge(r.Context(), judgeID); err != nil {
		closeWithCode(conn, CloseInvalidToken, "judge not found or inactive")
		return
	}

	status, err := h.competitionService.StatusForJudge(r.Context(), judgeID)
	if err != nil || !status.IsActive {
		closeWithCode(conn, CloseNoActiveCompetition, "no active competition for this judge")
		return
	}

	client := &live.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Rooms: []string{
			live.JudgeRoom(judgeID),
			live.CompetitionRoom(status.ID),
		},
		OnMessage: h.handleJudgeMessage,
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	client.SendJSON(live.Message{
		Type:    live.EventConnected,
		Message: "Conexión establecida",
		Payload: status,
	})
}

// ServeViewer обрабатывает публичное подключение зрителя:
// /ws/competitions/{competitionID}. Только рассылка, без входящих команд.
func (h *WebSocketHandler) ServeViewer(w http.ResponseWriter, r *http.Request) {
	competitionID, err := getIDFromURL(r, "competitionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	status, err := h.competitionService.GetStatus(r.Context(), competitionID)
	if err != nil {
		if errors.Is(err, services.ErrCompetitionNotFound) {
			notFoundResponse(w, r)
			return
		}
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection for competition %d: %v", competitionID, err)
		return
	}

	client := &live.Client{
		Hub:   h.hub,
		Conn:  conn,
		Send:  make(chan []byte, 256),
		Rooms: []string{live.CompetitionRoom(competitionID)},
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	client.SendJSON(live.Message{
		Type:    live.EventConnected,
		Message: "Conexión establecida",
		Payload: status,
	})
}

type inboundMessage struct {
	Type string `json:"type"`
}

func (h *WebSocketHandler) handleJudgeMessage(c *live.Client, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.SendJSON(live.Message{
			Type:    live.EventError,
			Message: "invalid message format, expected JSON with a 'type' field",
		})
		return
	}

	switch msg.Type {
	case "ping":
		c.SendJSON(live.Message{Type: live.EventPong})
	case "register_time", "register_batch", "registro", "registros":
		// Регистрация времени идёт только через HTTP, сокет её не принимает.
		c.SendJSON(live.Message{
			Type:    live.EventError,
			Message: "time registration over websocket is not supported, use POST /teams/{teamID}/records",
		})
	default:
		c.SendJSON(live.Message{
			Type:    live.EventError,
			Message: "unknown message type: " + msg.Type,
		})
	}
}
