package services

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nexchat-app/nexchat/config"
	"github.com/nexchat-app/nexchat/db"
	apiError "github.com/nexchat-app/nexchat/errors"
	"github.com/nexchat-app/nexchat/models"
	"github.com/nexchat-app/nexchat/services/jwt"
)

// Live event names shared by HTTP send paths and the socket loop.
const (
	EventMessage          = "message"
	EventMessageSent      = "message_sent"
	EventMessageError     = "message_error"
	EventGroupMessage     = "group_message"
	EventGroupMessageSent = "group_message_sent"
	EventGroupMessageErr  = "group_message_error"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
	EventMessageRead      = "message_read"
	EventReadConfirmed    = "read_confirmed"
	EventReadError        = "read_error"
	EventUserStatusChange = "user_status_change"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outboundEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// session is one live authenticated connection.
type session struct {
	userID   uuid.UUID
	userName string
	conn     *websocket.Conn
	send     chan outboundEvent
	once     sync.Once
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.send)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func (s *session) push(event string, data interface{}) {
	defer func() {
		// A racing close() makes the send channel unusable; dropping the
		// event is fine, delivery is best-effort.
		_ = recover()
	}()
	select {
	case s.send <- outboundEvent{Event: event, Data: data}:
	default:
		log.Printf("socket: dropping %s for %s, send buffer full", event, s.userID)
	}
}

// SocketService is the live-session registry. Policy: one Active connection
// per user; a new handshake evicts and closes the previous connection for
// that identity. Events for users with no Active connection are dropped —
// durability lives in the message store, not the transport.
type SocketService struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*session

	Config   *config.Config
	authRepo db.AuthRepository
	messages MessageService
	upgrader websocket.Upgrader
}

func NewSocketService(authRepo db.AuthRepository, conf *config.Config) *SocketService {
	return &SocketService{
		sessions: make(map[uuid.UUID]*session),
		Config:   conf,
		authRepo: authRepo,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// BindMessageService wires the send orchestrator after construction; the
// two reference each other (sends fan out here, socket events send there).
func (s *SocketService) BindMessageService(messages MessageService) {
	s.messages = messages
}

// HandleConnection authenticates the handshake, upgrades, registers the
// session and runs its pumps. The connection is Authenticating until the
// credential verifies; only then is it registered as Active.
func (s *SocketService) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "authentication error: token required", http.StatusUnauthorized)
		return
	}
	if s.authRepo.IsTokenInBlacklist(token) {
		http.Error(w, "authentication error: token revoked", http.StatusUnauthorized)
		return
	}
	userID, err := jwt.UserIDFromToken(token, s.Config.JWTSecret)
	if err != nil {
		http.Error(w, "authentication error: invalid token", http.StatusUnauthorized)
		return
	}
	user, err := s.authRepo.FindUserByID(userID)
	if err != nil {
		http.Error(w, "authentication error: user not found", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("socket upgrade error: %v", err)
		return
	}

	sess := &session{
		userID:   user.ID,
		userName: user.Name,
		conn:     conn,
		send:     make(chan outboundEvent, sendBufferSize),
	}
	s.register(sess)

	if err := s.authRepo.UpdateUserOnlineStatus(user.ID, true); err != nil {
		log.Printf("socket: could not mark %s online: %v", user.ID, err)
	}
	s.broadcastExcept(user.ID, EventUserStatusChange, map[string]interface{}{
		"user_id":   user.ID,
		"user_name": user.Name,
		"is_online": true,
	})

	go s.writePump(sess)
	s.readPump(sess)
}

// register installs the session, evicting any previous connection for the
// same identity.
func (s *SocketService) register(sess *session) {
	s.mu.Lock()
	prev := s.sessions[sess.userID]
	s.sessions[sess.userID] = sess
	s.mu.Unlock()

	if prev != nil {
		log.Printf("socket: evicting previous session for %s", sess.userID)
		prev.close()
	}
}

// unregister removes the session if it is still the registered one (an
// evicted session must not remove its evictor) and broadcasts presence.
func (s *SocketService) unregister(sess *session) {
	s.mu.Lock()
	current := s.sessions[sess.userID] == sess
	if current {
		delete(s.sessions, sess.userID)
	}
	s.mu.Unlock()

	sess.close()
	if !current {
		return
	}

	if err := s.authRepo.UpdateUserOnlineStatus(sess.userID, false); err != nil {
		log.Printf("socket: could not mark %s offline: %v", sess.userID, err)
	}
	s.broadcastExcept(sess.userID, EventUserStatusChange, map[string]interface{}{
		"user_id":   sess.userID,
		"user_name": sess.userName,
		"is_online": false,
	})
}

func (s *SocketService) readPump(sess *session) {
	defer s.unregister(sess)

	sess.conn.SetReadLimit(32 << 10)
	_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env envelope
		if err := sess.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("socket read error for %s: %v", sess.userID, err)
			}
			return
		}
		s.dispatch(sess, env)
	}
}

func (s *SocketService) writePump(sess *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sess.conn.Close()
	}()

	for {
		select {
		case out, ok := <-sess.send:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sess.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sess.conn.WriteJSON(out); err != nil {
				return
			}
		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound event. A panicking handler is contained to
// this event; it never takes down the pump or other connections.
func (s *SocketService) dispatch(sess *session, env envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("socket: recovered handler panic for %s on %s: %v", sess.userID, env.Event, r)
		}
	}()

	switch env.Event {
	case "send_message":
		s.handleSendMessage(sess, env.Data)
	case "send_group_message":
		s.handleSendGroupMessage(sess, env.Data)
	case EventTypingStart, EventTypingStop:
		s.handleTyping(sess, env.Event, env.Data)
	case "mark_read":
		s.handleMarkRead(sess, env.Data)
	case "set_online_status":
		s.handleOnlineStatus(sess, env.Data)
	default:
		log.Printf("socket: unknown event %q from %s", env.Event, sess.userID)
	}
}

func (s *SocketService) handleSendMessage(sess *session, data json.RawMessage) {
	var req models.SendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Receiver == "" || req.Content == "" {
		sess.push(EventMessageError, map[string]string{"message": "invalid send_message payload"})
		return
	}

	message, apiErr := s.messages.SendPrivateMessage(sess.userID, &req)
	if apiErr != nil {
		sess.push(EventMessageError, map[string]interface{}{"message": apiErr.Message})
		return
	}
	sess.push(EventMessageSent, message)
}

func (s *SocketService) handleSendGroupMessage(sess *session, data json.RawMessage) {
	var req models.SendGroupMessageRequest
	if err := json.Unmarshal(data, &req); err != nil || req.GroupID == "" || req.Content == "" {
		sess.push(EventGroupMessageErr, map[string]string{"message": "invalid send_group_message payload"})
		return
	}

	message, apiErr := s.messages.SendGroupMessage(sess.userID, &req)
	if apiErr != nil {
		sess.push(EventGroupMessageErr, map[string]interface{}{"message": apiErr.Message})
		return
	}
	sess.push(EventGroupMessageSent, message)
}

func (s *SocketService) handleTyping(sess *session, event string, data json.RawMessage) {
	var req struct {
		Receiver string `json:"receiver"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	receiverID, err := uuid.Parse(req.Receiver)
	if err != nil {
		return
	}
	s.SendToUser(receiverID, event, map[string]interface{}{
		"user_id":   sess.userID,
		"user_name": sess.userName,
		"receiver":  receiverID,
	})
}

func (s *SocketService) handleMarkRead(sess *session, data json.RawMessage) {
	var req struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		sess.push(EventReadError, map[string]string{"message": "invalid mark_read payload"})
		return
	}
	messageID, err := uuid.Parse(req.MessageID)
	if err != nil {
		sess.push(EventReadError, map[string]string{"message": "invalid message id"})
		return
	}

	// AlreadyProcessed still confirms: the message is read either way.
	message, apiErr := s.messages.MarkMessageAsRead(sess.userID, messageID)
	if apiErr != nil && apiErr != apiError.ErrAlreadyProcessed {
		sess.push(EventReadError, map[string]interface{}{"message": apiErr.Message})
		return
	}
	sess.push(EventReadConfirmed, map[string]interface{}{
		"success":    true,
		"message_id": message.ID,
	})
}

func (s *SocketService) handleOnlineStatus(sess *session, data json.RawMessage) {
	var req struct {
		IsOnline bool `json:"is_online"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	s.broadcastExcept(sess.userID, EventUserStatusChange, map[string]interface{}{
		"user_id":   sess.userID,
		"user_name": sess.userName,
		"is_online": req.IsOnline,
	})
}

// SendToUser delivers to the user's Active connection; no-op when offline.
func (s *SocketService) SendToUser(userID uuid.UUID, event string, payload interface{}) {
	s.mu.RLock()
	sess := s.sessions[userID]
	s.mu.RUnlock()
	if sess == nil {
		return
	}
	sess.push(event, payload)
}

// SendToGroup fans one event out to every Active connection among the given
// participants, excluding the sender.
func (s *SocketService) SendToGroup(participantIDs []uuid.UUID, excludeUserID uuid.UUID, event string, payload interface{}) {
	s.mu.RLock()
	targets := make([]*session, 0, len(participantIDs))
	for _, id := range participantIDs {
		if id == excludeUserID {
			continue
		}
		if sess := s.sessions[id]; sess != nil {
			targets = append(targets, sess)
		}
	}
	s.mu.RUnlock()

	for _, sess := range targets {
		sess.push(event, payload)
	}
}

func (s *SocketService) broadcastExcept(excludeUserID uuid.UUID, event string, payload interface{}) {
	s.mu.RLock()
	targets := make([]*session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if id == excludeUserID {
			continue
		}
		targets = append(targets, sess)
	}
	s.mu.RUnlock()

	for _, sess := range targets {
		sess.push(event, payload)
	}
}

// IsUserOnline reports whether the user holds an Active connection.
func (s *SocketService) IsUserOnline(userID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[userID]
	return ok
}

// OnlineUsers lists the identities with an Active connection.
func (s *SocketService) OnlineUsers() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
