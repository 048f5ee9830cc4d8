package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openboard/openboard/auth"
	"github.com/openboard/openboard/internal/config"
)

// stubValidator maps raw tokens to usernames
type stubValidator struct {
	tokens map[string]string
}

func (v *stubValidator) ExtractUsername(token string) (string, error) {
	username, ok := v.tokens[token]
	if !ok {
		return "", errors.New("invalid token")
	}
	return username, nil
}

// stubResolver maps display usernames to accounts
type stubResolver struct {
	users map[string]*auth.User
}

func (r *stubResolver) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	user, ok := r.users[username]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return user, nil
}

type realtimeFixture struct {
	hub        *Hub
	dispatcher *FrameDispatcher
	rooms      *MemoryRoomStore
	opStore    *MemoryOperationStore
	messages   *MemoryMessageStore
	presence   *PresenceRegistry
	sequencer  *OperationSequencer
	validator  *stubValidator
	resolver   *stubResolver
}

func newRealtimeFixture(t *testing.T) *realtimeFixture {
	t.Helper()

	cfg := config.Default()
	f := &realtimeFixture{
		hub:      NewHub(cfg.WebSocket),
		rooms:    NewMemoryRoomStore(),
		opStore:  NewMemoryOperationStore(),
		messages: NewMemoryMessageStore(),
		presence: NewPresenceRegistry(),
		validator: &stubValidator{tokens: map[string]string{
			"token-alice": "alice",
			"token-bob":   "bob",
		}},
		resolver: &stubResolver{users: map[string]*auth.User{
			"alice": {ID: 1, DisplayName: "alice"},
			"bob":   {ID: 2, DisplayName: "bob"},
		}},
	}
	f.sequencer = NewOperationSequencer(f.opStore)

	services := &RealtimeServices{
		Hub:       f.hub,
		Presence:  f.presence,
		Sequencer: f.sequencer,
		Rooms:     f.rooms,
		Messages:  f.messages,
		Users:     f.resolver,
	}
	f.dispatcher = NewFrameDispatcher(NewConnectionAuthenticator(f.validator), services)
	return f
}

func (f *realtimeFixture) newClient(t *testing.T) *WebSocketClient {
	t.Helper()
	client := &WebSocketClient{
		ID:         uuid.New().String(),
		hub:        f.hub,
		send:       make(chan []byte, 16),
		dispatcher: f.dispatcher,
		Session:    &ConnSession{Attributes: make(map[string]string)},
	}
	f.hub.RegisterClient(client)
	return client
}

func (f *realtimeFixture) authedClient(t *testing.T, token string) *WebSocketClient {
	t.Helper()
	client := f.newClient(t)
	f.dispatcher.Dispatch(client, marshalFrame(t, Frame{
		Command: CommandConnect,
		Headers: map[string]string{"Authorization": "Bearer " + token},
	}))
	drainFrames(client)
	return client
}

func marshalFrame(t *testing.T, frame Frame) []byte {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	return raw
}

func sendBody(t *testing.T, destination string, body any) []byte {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return marshalFrame(t, Frame{Command: CommandSend, Destination: destination, Body: raw})
}

func recvFrame(t *testing.T, client *WebSocketClient) *Frame {
	t.Helper()
	select {
	case raw := <-client.send:
		var frame Frame
		require.NoError(t, json.Unmarshal(raw, &frame))
		return &frame
	default:
		t.Fatal("expected a queued frame")
		return nil
	}
}

func assertNoFrame(t *testing.T, client *WebSocketClient) {
	t.Helper()
	select {
	case raw := <-client.send:
		t.Fatalf("unexpected frame queued: %s", raw)
	default:
	}
}

func drainFrames(client *WebSocketClient) {
	for {
		select {
		case <-client.send:
		default:
			return
		}
	}
}

func TestConnectFrameAuthenticates(t *testing.T) {
	f := newRealtimeFixture(t)
	client := f.newClient(t)

	done := f.dispatcher.Dispatch(client, marshalFrame(t, Frame{
		Command: CommandConnect,
		Headers: map[string]string{"Authorization": "Bearer token-alice"},
	}))
	assert.False(t, done)

	frame := recvFrame(t, client)
	assert.Equal(t, CommandConnected, frame.Command)

	var body map[string]any
	require.NoError(t, json.Unmarshal(frame.Body, &body))
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "alice", client.Session.Username)
}

func TestConnectWithoutTokenStaysUnauthenticated(t *testing.T) {
	f := newRealtimeFixture(t)
	client := f.newClient(t)

	f.dispatcher.Dispatch(client, marshalFrame(t, Frame{Command: CommandConnect}))

	frame := recvFrame(t, client)
	assert.Equal(t, CommandConnected, frame.Command)

	var body map[string]any
	require.NoError(t, json.Unmarshal(frame.Body, &body))
	assert.Equal(t, false, body["authenticated"])
	assert.False(t, client.Session.Authenticated())
}

func TestLateFrameAuthenticationUpgrades(t *testing.T) {
	f := newRealtimeFixture(t)
	client := f.newClient(t)

	f.dispatcher.Dispatch(client, marshalFrame(t, Frame{Command: CommandConnect}))
	drainFrames(client)
	require.False(t, client.Session.Authenticated())

	// A later frame carrying a valid token flips the connection
	f.dispatcher.Dispatch(client, sendBody(t, "cursor", cursorBody{RoomID: "room-1", X: 1, Y: 2}))
	require.False(t, client.Session.Authenticated())
	drainFrames(client)

	f.dispatcher.Dispatch(client, marshalFrame(t, Frame{
		Command:     CommandSend,
		Destination: "cursor",
		Headers:     map[string]string{"Authorization": "Bearer token-alice"},
		Body:        json.RawMessage(`{"roomId":"room-1","x":1,"y":2}`),
	}))
	assert.True(t, client.Session.Authenticated())
	assert.Equal(t, "alice", client.Session.Username)
}

func TestAuthenticationNeverReverts(t *testing.T) {
	f := newRealtimeFixture(t)
	client := f.authedClient(t, "token-alice")
	require.True(t, client.Session.Authenticated())

	// A frame with a bogus token must not clear the resolved identity
	f.dispatcher.Dispatch(client, marshalFrame(t, Frame{
		Command:     CommandSend,
		Destination: "cursor",
		Headers:     map[string]string{"Authorization": "Bearer bogus"},
		Body:        json.RawMessage(`{"roomId":"room-1","x":0,"y":0}`),
	}))

	assert.True(t, client.Session.Authenticated())
	assert.Equal(t, "alice", client.Session.Username)
}

func TestHandshakeAttributesSeedConnect(t *testing.T) {
	f := newRealtimeFixture(t)
	client := f.newClient(t)
	client.Session.Attributes["token"] = "token-bob"

	f.dispatcher.Dispatch(client, marshalFrame(t, Frame{Command: CommandConnect}))

	assert.True(t, client.Session.Authenticated())
	assert.Equal(t, "bob", client.Session.Username)
}

func TestQueryHeaderTokenFallback(t *testing.T) {
	f := newRealtimeFixture(t)
	client := f.newClient(t)

	f.dispatcher.Dispatch(client, marshalFrame(t, Frame{
		Command: CommandConnect,
		Headers: map[string]string{"query": "foo=bar&token=token-alice&x=1"},
	}))

	assert.True(t, client.Session.Authenticated())
	assert.Equal(t, "alice", client.Session.Username)
}

func TestDisconnectFrameEndsConnection(t *testing.T) {
	f := newRealtimeFixture(t)
	client := f.newClient(t)

	done := f.dispatcher.Dispatch(client, marshalFrame(t, Frame{Command: CommandDisconnect}))
	assert.True(t, done)
}

func TestServerOnlyCommandsRejected(t *testing.T) {
	f := newRealtimeFixture(t)
	client := f.newClient(t)

	for _, cmd := range []string{CommandConnected, CommandMessage, CommandError} {
		f.dispatcher.Dispatch(client, marshalFrame(t, Frame{Command: cmd}))
		frame := recvFrame(t, client)
		assert.Equal(t, CommandError, frame.Command)
	}
}

func TestMalformedFrameSendsError(t *testing.T) {
	f := newRealtimeFixture(t)
	client := f.newClient(t)

	done := f.dispatcher.Dispatch(client, []byte("{not json"))
	assert.False(t, done)

	frame := recvFrame(t, client)
	assert.Equal(t, CommandError, frame.Command)

	var body Error
	require.NoError(t, json.Unmarshal(frame.Body, &body))
	assert.Equal(t, "invalid_frame", body.Error)
}

func TestDrawPersistsAndBroadcasts(t *testing.T) {
	f := newRealtimeFixture(t)
	room := newTestRoom(t, f.rooms, "room-1")

	author := f.authedClient(t, "token-alice")
	viewer := f.newClient(t)
	f.hub.Subscribe(viewer, TopicDraw)

	f.dispatcher.Dispatch(author, sendBody(t, "draw", drawBody{
		RoomID: room.RoomID,
		Type:   "stroke",
		Data:   `{"points":[[0,0],[1,1]]}`,
	}))
	assertNoFrame(t, author)

	frame := recvFrame(t, viewer)
	assert.Equal(t, CommandMessage, frame.Command)
	assert.Equal(t, TopicDraw, frame.Destination)

	var body drawBody
	require.NoError(t, json.Unmarshal(frame.Body, &body))
	assert.Equal(t, "alice", body.Username)
	assert.Equal(t, "stroke", body.Type)

	ops, err := f.opStore.ListSince(context.Background(), room.ID, 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, int64(1), ops[0].SequenceNumber)
	assert.Equal(t, uint64(1), ops[0].UserID)

	stored, err := f.rooms.GetByRoomID(context.Background(), room.RoomID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastUpdated)
}

func TestDrawUnauthenticatedBroadcastsUnattributed(t *testing.T) {
	f := newRealtimeFixture(t)
	room := newTestRoom(t, f.rooms, "room-1")

	author := f.newClient(t)
	viewer := f.newClient(t)
	f.hub.Subscribe(viewer, TopicDraw)

	f.dispatcher.Dispatch(author, sendBody(t, "draw", drawBody{
		RoomID:   room.RoomID,
		Type:     "stroke",
		Data:     "{}",
		Username: "spoofed",
	}))

	frame := recvFrame(t, viewer)
	var body drawBody
	require.NoError(t, json.Unmarshal(frame.Body, &body))
	assert.Empty(t, body.Username, "unauthenticated draws must not carry an identity")

	ops, err := f.opStore.ListSince(context.Background(), room.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, ops, "unauthenticated draws are never persisted")
}

func TestDrawUnknownAccountBroadcastsWithoutPersisting(t *testing.T) {
	f := newRealtimeFixture(t)
	room := newTestRoom(t, f.rooms, "room-1")

	// Valid token whose account row no longer exists
	f.validator.tokens["token-ghost"] = "ghost"
	author := f.authedClient(t, "token-ghost")
	viewer := f.newClient(t)
	f.hub.Subscribe(viewer, TopicDraw)

	f.dispatcher.Dispatch(author, sendBody(t, "draw", drawBody{
		RoomID: room.RoomID,
		Type:   "stroke",
		Data:   "{}",
	}))
	assertNoFrame(t, author)

	frame := recvFrame(t, viewer)
	var body drawBody
	require.NoError(t, json.Unmarshal(frame.Body, &body))
	assert.Equal(t, "ghost", body.Username)

	ops, err := f.opStore.ListSince(context.Background(), room.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestDrawUnknownRoomFailsWithoutBroadcast(t *testing.T) {
	f := newRealtimeFixture(t)

	author := f.authedClient(t, "token-alice")
	viewer := f.newClient(t)
	f.hub.Subscribe(viewer, TopicDraw)

	f.dispatcher.Dispatch(author, sendBody(t, "draw", drawBody{
		RoomID: "no-such-room",
		Type:   "stroke",
		Data:   "{}",
	}))

	frame := recvFrame(t, author)
	assert.Equal(t, CommandError, frame.Command)

	var body Error
	require.NoError(t, json.Unmarshal(frame.Body, &body))
	assert.Equal(t, "not_found", body.Error)

	assertNoFrame(t, viewer)
}

func TestJoinBroadcastsMemberList(t *testing.T) {
	f := newRealtimeFixture(t)

	alice := f.authedClient(t, "token-alice")
	bob := f.authedClient(t, "token-bob")
	f.hub.Subscribe(alice, TopicRoomUsers("room-1"))
	f.hub.Subscribe(bob, TopicRoomUsers("room-1"))

	f.dispatcher.Dispatch(alice, sendBody(t, "join", joinLeaveBody{RoomID: "room-1"}))

	for _, client := range []*WebSocketClient{alice, bob} {
		frame := recvFrame(t, client)
		assert.Equal(t, TopicRoomUsers("room-1"), frame.Destination)

		var update presenceUpdate
		require.NoError(t, json.Unmarshal(frame.Body, &update))
		assert.Equal(t, "join", update.Event)
		assert.Equal(t, "alice", update.Username)
		require.Len(t, update.Users, 1)
		assert.Equal(t, "alice", update.Users[0].Username)
	}

	f.dispatcher.Dispatch(bob, sendBody(t, "join", joinLeaveBody{RoomID: "room-1"}))
	frame := recvFrame(t, alice)

	var update presenceUpdate
	require.NoError(t, json.Unmarshal(frame.Body, &update))
	assert.Len(t, update.Users, 2)
}

func TestJoinUnauthenticatedDroppedSilently(t *testing.T) {
	f := newRealtimeFixture(t)

	client := f.newClient(t)
	f.hub.Subscribe(client, TopicRoomUsers("room-1"))

	f.dispatcher.Dispatch(client, sendBody(t, "join", joinLeaveBody{RoomID: "room-1"}))

	assertNoFrame(t, client)
	assert.Empty(t, f.presence.Members("room-1"))
}

func TestLeaveBroadcastsMemberList(t *testing.T) {
	f := newRealtimeFixture(t)

	alice := f.authedClient(t, "token-alice")
	f.hub.Subscribe(alice, TopicRoomUsers("room-1"))

	f.dispatcher.Dispatch(alice, sendBody(t, "join", joinLeaveBody{RoomID: "room-1"}))
	drainFrames(alice)

	f.dispatcher.Dispatch(alice, sendBody(t, "leave", joinLeaveBody{RoomID: "room-1"}))

	frame := recvFrame(t, alice)
	var update presenceUpdate
	require.NoError(t, json.Unmarshal(frame.Body, &update))
	assert.Equal(t, "leave", update.Event)
	assert.Empty(t, update.Users)
}

func TestLeaveNeverJoinedRoomIsSilent(t *testing.T) {
	f := newRealtimeFixture(t)

	alice := f.authedClient(t, "token-alice")
	f.hub.Subscribe(alice, TopicRoomUsers("room-1"))

	f.dispatcher.Dispatch(alice, sendBody(t, "leave", joinLeaveBody{RoomID: "room-1"}))
	assertNoFrame(t, alice)
}

func TestChatRequiresAuthentication(t *testing.T) {
	f := newRealtimeFixture(t)
	room := newTestRoom(t, f.rooms, "room-1")

	client := f.newClient(t)
	f.hub.Subscribe(client, TopicRoomChat(room.RoomID))

	f.dispatcher.Dispatch(client, sendBody(t, "chat", chatBody{RoomID: room.RoomID, Content: "hi"}))

	frame := recvFrame(t, client)
	assert.Equal(t, CommandError, frame.Command)

	var body Error
	require.NoError(t, json.Unmarshal(frame.Body, &body))
	assert.Equal(t, "authentication_required", body.Error)

	history, err := f.messages.ListByRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestChatPersistsAndBroadcasts(t *testing.T) {
	f := newRealtimeFixture(t)
	room := newTestRoom(t, f.rooms, "room-1")
	f.messages.SetAuthorName(1, "alice")

	alice := f.authedClient(t, "token-alice")
	f.hub.Subscribe(alice, TopicRoomChat(room.RoomID))

	f.dispatcher.Dispatch(alice, sendBody(t, "chat", chatBody{RoomID: room.RoomID, Content: "hello"}))

	frame := recvFrame(t, alice)
	assert.Equal(t, CommandMessage, frame.Command)

	var body chatBody
	require.NoError(t, json.Unmarshal(frame.Body, &body))
	assert.Equal(t, "alice", body.Username)
	assert.Equal(t, "hello", body.Content)
	require.NotNil(t, body.Timestamp)

	history, err := f.messages.ListByRoom(context.Background(), room.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "alice", history[0].Username)
	assert.Equal(t, "hello", history[0].Content)
}

func TestCursorAnonymousFallback(t *testing.T) {
	f := newRealtimeFixture(t)

	sender := f.newClient(t)
	viewer := f.newClient(t)
	f.hub.Subscribe(viewer, TopicRoomCursor("room-1"))

	f.dispatcher.Dispatch(sender, sendBody(t, "cursor", cursorBody{RoomID: "room-1", X: 3, Y: 4}))

	frame := recvFrame(t, viewer)
	var body cursorBody
	require.NoError(t, json.Unmarshal(frame.Body, &body))
	assert.Equal(t, anonymousUsername, body.Username)
	assert.Equal(t, 3.0, body.X)
	assert.Equal(t, 4.0, body.Y)
}

func TestCursorCarriesResolvedIdentity(t *testing.T) {
	f := newRealtimeFixture(t)

	alice := f.authedClient(t, "token-alice")
	viewer := f.newClient(t)
	f.hub.Subscribe(viewer, TopicRoomCursor("room-1"))

	f.dispatcher.Dispatch(alice, sendBody(t, "cursor", cursorBody{RoomID: "room-1", X: 1, Y: 1, Username: "spoofed"}))

	frame := recvFrame(t, viewer)
	var body cursorBody
	require.NoError(t, json.Unmarshal(frame.Body, &body))
	assert.Equal(t, "alice", body.Username)
}

func TestUnsupportedDestinationSendsError(t *testing.T) {
	f := newRealtimeFixture(t)
	client := f.newClient(t)

	f.dispatcher.Dispatch(client, sendBody(t, "nope", map[string]string{}))

	frame := recvFrame(t, client)
	assert.Equal(t, CommandError, frame.Command)

	var body Error
	require.NoError(t, json.Unmarshal(frame.Body, &body))
	assert.Equal(t, "unsupported_destination", body.Error)
}

func TestSubscribeScopesBroadcasts(t *testing.T) {
	f := newRealtimeFixture(t)

	inRoom := f.newClient(t)
	otherRoom := f.newClient(t)

	f.dispatcher.Dispatch(inRoom, marshalFrame(t, Frame{
		Command:     CommandSubscribe,
		Destination: TopicRoomChat("room-1"),
	}))
	f.dispatcher.Dispatch(otherRoom, marshalFrame(t, Frame{
		Command:     CommandSubscribe,
		Destination: TopicRoomChat("room-2"),
	}))

	f.hub.Publish(TopicRoomChat("room-1"), chatBody{RoomID: "room-1", Content: "scoped"})

	frame := recvFrame(t, inRoom)
	assert.Equal(t, TopicRoomChat("room-1"), frame.Destination)
	assertNoFrame(t, otherRoom)
}
