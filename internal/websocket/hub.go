package websocket

import (
	"context"
	"sync"

	"github.com/applyguard/applyguard-backend/internal/notify"
	"go.uber.org/zap"
)

// Hub 운영자 대시보드 WebSocket 연결 관리 및 알림 브로드캐스트
type Hub struct {
	// 운영자별 연결 저장 (operatorID -> *Client)
	clients map[string]*Client
	mu      sync.RWMutex

	// 브로드캐스트 채널
	broadcast chan *Message

	// 등록/해제 채널
	register   chan *Client
	unregister chan *Client

	logger *zap.Logger
}

// Message WebSocket 메시지
type Message struct {
	OperatorID string      `json:"-"`       // 수신자 (빈 문자열이면 전체 브로드캐스트)
	Type       string      `json:"type"`    // 메시지 타입
	Payload    interface{} `json:"payload"` // 메시지 내용
}

// NewHub Hub 생성
func NewHub() *Hub {
	logger, _ := zap.NewProduction()
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run Hub 실행
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// registerClient 클라이언트 등록
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 기존 연결이 있으면 닫기
	if oldClient, exists := h.clients[client.operatorID]; exists {
		close(oldClient.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("operatorId", client.operatorID))
	}

	h.clients[client.operatorID] = client
	h.logger.Info("WebSocket client registered",
		zap.String("operatorId", client.operatorID),
		zap.Int("totalClients", len(h.clients)))
}

// unregisterClient 클라이언트 해제
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[client.operatorID]; exists {
		delete(h.clients, client.operatorID)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("operatorId", client.operatorID),
			zap.Int("totalClients", len(h.clients)))
	}
}

// broadcastMessage 메시지 브로드캐스트
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if message.OperatorID == "" {
		// 전체 브로드캐스트
		for _, client := range h.clients {
			select {
			case client.send <- message:
			default:
				// 채널이 가득 찬 경우 연결 해제
				h.logger.Warn("Client send channel full, unregistering",
					zap.String("operatorId", client.operatorID))
				go func(c *Client) {
					h.unregister <- c
				}(client)
			}
		}
	} else {
		// 특정 운영자에게만 전송
		if client, exists := h.clients[message.OperatorID]; exists {
			select {
			case client.send <- message:
			default:
				h.logger.Warn("Client send channel full",
					zap.String("operatorId", message.OperatorID))
			}
		}
	}
}

// Broadcast 모든 운영자에게 메시지 전송
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	h.broadcast <- &Message{
		OperatorID: "",
		Type:       msgType,
		Payload:    payload,
	}
}

// SendToOperator 특정 운영자에게 메시지 전송
func (h *Hub) SendToOperator(operatorID string, msgType string, payload interface{}) {
	h.broadcast <- &Message{
		OperatorID: operatorID,
		Type:       msgType,
		Payload:    payload,
	}
}

// Notify 안전 엔진 알림을 대시보드로 중계한다. notify.Notifier 구현.
func (h *Hub) Notify(ctx context.Context, event notify.Event) error {
	h.Broadcast("safety_alert", event)
	return nil
}
