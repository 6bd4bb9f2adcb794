package live

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// Имена групп рассылки: per-judge и per-competition.
func JudgeRoom(judgeID int) string {
	return fmt.Sprintf("judge_%d", judgeID)
}

func CompetitionRoom(competitionID int) string {
	return fmt.Sprintf("competition_%d", competitionID)
}

// Типы исходящих событий живого канала.
const (
	EventCompetitionStarted = "competition_started"
	EventCompetitionStopped = "competition_stopped"
	EventRecordsUpdated     = "records_updated"
	EventConnected          = "conexion_establecida"
	EventPong               = "pong"
	EventError              = "error"
)

type Message struct {
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Hub держит все подключённые live-клиенты, сгруппированные по комнатам.
// Delivery is at-most-once: a client that joins after a publish does not
// receive it retroactively; the connect-time snapshot compensates.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	rooms      map[string]map[*Client]bool
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			for _, room := range client.Rooms {
				if _, ok := h.rooms[room]; !ok {
					h.rooms[room] = make(map[*Client]bool)
				}
				h.rooms[room][client] = true
				log.Printf("Client registered to room %s. Total clients in room: %d", room, len(h.rooms[room]))
			}
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			registered := false
			for _, room := range client.Rooms {
				if clients, ok := h.rooms[room]; ok {
					if _, okClient := clients[client]; okClient {
						registered = true
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.rooms, room)
							log.Printf("Room %s closed as it's empty.", room)
						} else {
							log.Printf("Client unregistered from room %s. Total clients in room: %d", room, len(clients))
						}
					}
				}
			}
			if registered {
				client.Mu.Lock()
				if !client.IsClosed {
					close(client.Send)
					client.IsClosed = true
				}
				client.Mu.Unlock()
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToRoom отправляет сообщение всем клиентам в указанной комнате.
func (h *Hub) BroadcastToRoom(roomID string, message interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	roomClients, ok := h.rooms[roomID]
	if !ok {
		return
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshalling message for room %s: %v", roomID, err)
		return
	}

	for client := range roomClients {
		client.Mu.Lock()
		if client.IsClosed {
			client.Mu.Unlock()
			continue
		}
		select {
		case client.Send <- messageBytes:
		default:
			// Канал клиента полон или закрыт
			log.Printf("Client's send channel full or closed for room %s. Skipping.", roomID)
		}
		client.Mu.Unlock()
	}
}
