package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/openboard/openboard/auth"
	"github.com/openboard/openboard/internal/slogging"
)

// Frame is one logical unit on the websocket sub-protocol
type Frame struct {
	Command     string            `json:"command"`
	Headers     map[string]string `json:"headers,omitempty"`
	Destination string            `json:"destination,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
}

// Frame commands
const (
	CommandConnect    = "connect"
	CommandSend       = "send"
	CommandSubscribe  = "subscribe"
	CommandDisconnect = "disconnect"

	// Server-to-client commands
	CommandConnected = "connected"
	CommandMessage   = "message"
	CommandError     = "error"
)

// Dispatch-level sentinel errors
var (
	errAuthenticationRequired = errors.New("authentication required")
	errInvalidBody            = errors.New("invalid frame body")
)

// MarshalMessageFrame wraps a payload in a message frame for a topic
func MarshalMessageFrame(topic string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message body: %w", err)
	}
	return json.Marshal(Frame{
		Command:     CommandMessage,
		Destination: topic,
		Body:        raw,
	})
}

// RealtimeServices bundles what the frame handlers need
type RealtimeServices struct {
	Hub       *Hub
	Presence  *PresenceRegistry
	Sequencer *OperationSequencer
	Rooms     RoomStore
	Messages  MessageStore
	Users     IdentityResolver
}

// FrameHandler handles one send-frame destination
type FrameHandler interface {
	HandleFrame(ctx context.Context, client *WebSocketClient, frame *Frame) error
	Destination() string
}

// FrameDispatcher is the top-level entry point for inbound frames: it runs
// the connection authenticator, routes send frames to the handler for their
// destination, and manages subscriptions. A connection moves from
// unauthenticated to authenticated at most once and never reverts;
// unauthenticated connections stay permitted for everything except the
// handlers that demand an identity.
type FrameDispatcher struct {
	authenticator *ConnectionAuthenticator
	handlers      map[string]FrameHandler
}

// NewFrameDispatcher creates a dispatcher with the default frame handlers
func NewFrameDispatcher(authenticator *ConnectionAuthenticator, svc *RealtimeServices) *FrameDispatcher {
	d := &FrameDispatcher{
		authenticator: authenticator,
		handlers:      make(map[string]FrameHandler),
	}
	d.RegisterHandler(&DrawFrameHandler{svc: svc})
	d.RegisterHandler(&JoinFrameHandler{svc: svc})
	d.RegisterHandler(&LeaveFrameHandler{svc: svc})
	d.RegisterHandler(&ChatFrameHandler{svc: svc})
	d.RegisterHandler(&CursorFrameHandler{svc: svc})
	return d
}

// RegisterHandler registers a frame handler for its destination
func (d *FrameDispatcher) RegisterHandler(handler FrameHandler) {
	d.handlers[handler.Destination()] = handler
}

// Dispatch processes one raw inbound frame. It returns true when the
// connection should close (disconnect frame). No frame error is fatal to
// the connection.
func (d *FrameDispatcher) Dispatch(client *WebSocketClient, message []byte) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in frame dispatch - connection: %s, error: %v, stack: %s",
				client.ID, r, debug.Stack())
		}
	}()

	var frame Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		slogging.Get().Warn("Failed to parse frame from connection %s: %v", client.ID, err)
		d.sendError(client, "invalid_frame", "Frame could not be parsed")
		return false
	}

	metricFrames.WithLabelValues(frame.Command, frame.Destination).Inc()

	switch frame.Command {
	case CommandConnect:
		d.authenticator.AuthenticateOnOpen(client, &frame)
		d.sendConnected(client)

	case CommandSubscribe:
		d.authenticator.AuthenticateOnFrame(client, &frame)
		client.hub.Subscribe(client, frame.Destination)

	case CommandDisconnect:
		return true

	case CommandSend:
		d.authenticator.AuthenticateOnFrame(client, &frame)
		d.route(client, &frame)

	case CommandConnected, CommandMessage, CommandError:
		slogging.Get().Warn("Connection %s sent server-only command %q", client.ID, frame.Command)
		d.sendError(client, "invalid_command", "Command "+frame.Command+" is server-only")

	default:
		d.sendError(client, "unsupported_command", "Command "+frame.Command+" is not supported")
	}
	return false
}

func (d *FrameDispatcher) route(client *WebSocketClient, frame *Frame) {
	handler, ok := d.handlers[frame.Destination]
	if !ok {
		slogging.Get().Warn("Unsupported destination %q from connection %s",
			slogging.SanitizeLogMessage(frame.Destination), client.ID)
		d.sendError(client, "unsupported_destination", "Destination is not supported")
		return
	}

	if err := handler.HandleFrame(context.Background(), client, frame); err != nil {
		metricFrameErrors.WithLabelValues(frame.Destination).Inc()
		slogging.Get().Warn("Frame dispatch failed destination=%s connection=%s: %v",
			frame.Destination, client.ID, err)
		d.sendError(client, errorCode(err), errorMessage(err))
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, errAuthenticationRequired):
		return "authentication_required"
	case errors.Is(err, ErrNotFound), errors.Is(err, auth.ErrUserNotFound):
		return "not_found"
	case errors.Is(err, errInvalidBody):
		return "invalid_body"
	default:
		return "internal_error"
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, errAuthenticationRequired):
		return "Authentication required"
	case errors.Is(err, ErrNotFound), errors.Is(err, auth.ErrUserNotFound):
		return "Not found"
	case errors.Is(err, errInvalidBody):
		return "Frame body could not be parsed"
	default:
		return "Internal error"
	}
}

func (d *FrameDispatcher) sendConnected(client *WebSocketClient) {
	body := map[string]any{
		"authenticated": client.Session.Authenticated(),
	}
	if client.Session.Authenticated() {
		body["username"] = client.Session.Username
	}
	frame, err := json.Marshal(Frame{Command: CommandConnected, Body: mustRaw(body)})
	if err != nil {
		return
	}
	client.Send(frame)
}

func (d *FrameDispatcher) sendError(client *WebSocketClient, code, message string) {
	frame, err := json.Marshal(Frame{
		Command: CommandError,
		Body:    mustRaw(Error{Error: code, Message: message}),
	})
	if err != nil {
		return
	}
	client.Send(frame)
}

func mustRaw(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

// drawBody is the payload of a draw frame; Username is set by the server
type drawBody struct {
	RoomID   string `json:"roomId"`
	Type     string `json:"type"`
	Data     string `json:"data"`
	Username string `json:"username,omitempty"`
}

// DrawFrameHandler persists and re-broadcasts drawing operations. An
// unauthenticated draw is still forwarded to subscribers but is neither
// attributed nor persisted; the persisted log only ever contains attributed
// operations.
type DrawFrameHandler struct {
	svc *RealtimeServices
}

// Destination returns the frame destination this handler serves
func (h *DrawFrameHandler) Destination() string { return "draw" }

// HandleFrame processes one draw frame
func (h *DrawFrameHandler) HandleFrame(ctx context.Context, client *WebSocketClient, frame *Frame) error {
	var body drawBody
	if err := json.Unmarshal(frame.Body, &body); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}

	sess := client.Session
	if !sess.Authenticated() {
		slogging.Get().Warn("Draw frame without identity on connection %s; forwarding unattributed", client.ID)
		body.Username = ""
		h.svc.Hub.Publish(TopicDraw, body)
		return nil
	}

	body.Username = sess.Username

	user, err := h.svc.Users.FindByUsername(ctx, sess.Username)
	if err != nil {
		// Identity resolved but the account row is gone: forward without persisting
		slogging.Get().Warn("Draw author %q has no account; forwarding unpersisted", sess.Username)
		h.svc.Hub.Publish(TopicDraw, body)
		return nil
	}

	room, err := h.svc.Rooms.GetByRoomID(ctx, body.RoomID)
	if err != nil {
		return err
	}

	op, err := h.svc.Sequencer.Append(ctx, room, user.ID, body.Type, body.Data)
	if err != nil {
		return err
	}
	metricOperations.Inc()

	if err := h.svc.Rooms.TouchLastUpdated(ctx, body.RoomID, op.CreatedAt); err != nil {
		slogging.Get().Debug("Failed to touch room %s: %v", body.RoomID, err)
	}

	h.svc.Hub.Publish(TopicDraw, body)
	return nil
}

type joinLeaveBody struct {
	RoomID string `json:"roomId"`
}

// presenceUpdate is broadcast on a room's users topic after join/leave
type presenceUpdate struct {
	Event    string          `json:"event"`
	Username string          `json:"username"`
	RoomID   string          `json:"roomId"`
	Users    []PresenceEntry `json:"users"`
}

// JoinFrameHandler registers presence and broadcasts the member list
type JoinFrameHandler struct {
	svc *RealtimeServices
}

// Destination returns the frame destination this handler serves
func (h *JoinFrameHandler) Destination() string { return "join" }

// HandleFrame processes one join frame. Joins without a resolved identity
// are dropped silently: there is nobody to register.
func (h *JoinFrameHandler) HandleFrame(ctx context.Context, client *WebSocketClient, frame *Frame) error {
	var body joinLeaveBody
	if err := json.Unmarshal(frame.Body, &body); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}

	sess := client.Session
	if !sess.Authenticated() {
		slogging.Get().Debug("Join frame without identity on connection %s dropped", client.ID)
		return nil
	}

	user, err := h.svc.Users.FindByUsername(ctx, sess.Username)
	if err != nil {
		slogging.Get().Debug("Join for unknown account %q dropped", sess.Username)
		return nil
	}

	members := h.svc.Presence.Join(body.RoomID, PresenceEntry{
		Username: sess.Username,
		UserID:   user.ID,
	})

	h.svc.Hub.Publish(TopicRoomUsers(body.RoomID), presenceUpdate{
		Event:    "join",
		Username: sess.Username,
		RoomID:   body.RoomID,
		Users:    members,
	})
	return nil
}

// LeaveFrameHandler removes presence and broadcasts the member list
type LeaveFrameHandler struct {
	svc *RealtimeServices
}

// Destination returns the frame destination this handler serves
func (h *LeaveFrameHandler) Destination() string { return "leave" }

// HandleFrame processes one leave frame. Leaving a room that was never
// joined is a no-op with no broadcast.
func (h *LeaveFrameHandler) HandleFrame(_ context.Context, client *WebSocketClient, frame *Frame) error {
	var body joinLeaveBody
	if err := json.Unmarshal(frame.Body, &body); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}

	sess := client.Session
	if !sess.Authenticated() {
		return nil
	}

	members, ok := h.svc.Presence.Leave(body.RoomID, sess.Username)
	if !ok {
		return nil
	}

	h.svc.Hub.Publish(TopicRoomUsers(body.RoomID), presenceUpdate{
		Event:    "leave",
		Username: sess.Username,
		RoomID:   body.RoomID,
		Users:    members,
	})
	return nil
}

// chatBody is the payload of a chat frame; Username and Timestamp are set
// by the server before broadcast
type chatBody struct {
	RoomID    string     `json:"roomId"`
	Content   string     `json:"content"`
	Username  string     `json:"username,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ChatFrameHandler persists and broadcasts chat messages. Chat is the one
// handler with a hard authentication requirement: a frame without a
// resolved identity fails outright, with no persistence and no broadcast.
type ChatFrameHandler struct {
	svc *RealtimeServices
}

// Destination returns the frame destination this handler serves
func (h *ChatFrameHandler) Destination() string { return "chat" }

// HandleFrame processes one chat frame
func (h *ChatFrameHandler) HandleFrame(ctx context.Context, client *WebSocketClient, frame *Frame) error {
	var body chatBody
	if err := json.Unmarshal(frame.Body, &body); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}

	sess := client.Session
	if !sess.Authenticated() {
		return errAuthenticationRequired
	}

	user, err := h.svc.Users.FindByUsername(ctx, sess.Username)
	if err != nil {
		return fmt.Errorf("chat author lookup failed: %w", err)
	}

	room, err := h.svc.Rooms.GetByRoomID(ctx, body.RoomID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	msg := &Message{
		RoomID:    room.ID,
		UserID:    user.ID,
		Content:   body.Content,
		Timestamp: now,
	}
	if err := h.svc.Messages.Save(ctx, msg); err != nil {
		return err
	}

	body.Username = sess.Username
	body.Timestamp = &now
	h.svc.Hub.Publish(TopicRoomChat(body.RoomID), body)
	return nil
}

// anonymousUsername annotates cursor events from unauthenticated connections
const anonymousUsername = "anonymous"

// cursorBody is the payload of a cursor frame
type cursorBody struct {
	RoomID   string  `json:"roomId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Username string  `json:"username,omitempty"`
}

// CursorFrameHandler broadcasts cursor positions. Cursor events are never
// persisted; identity is optional and anonymous cursors are forwarded with
// a fixed marker.
type CursorFrameHandler struct {
	svc *RealtimeServices
}

// Destination returns the frame destination this handler serves
func (h *CursorFrameHandler) Destination() string { return "cursor" }

// HandleFrame processes one cursor frame
func (h *CursorFrameHandler) HandleFrame(_ context.Context, client *WebSocketClient, frame *Frame) error {
	var body cursorBody
	if err := json.Unmarshal(frame.Body, &body); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}

	if client.Session.Authenticated() {
		body.Username = client.Session.Username
	} else {
		body.Username = anonymousUsername
	}

	h.svc.Hub.Publish(TopicRoomCursor(body.RoomID), body)
	return nil
}
