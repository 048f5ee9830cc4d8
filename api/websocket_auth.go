package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/openboard/openboard/auth"
	"github.com/openboard/openboard/internal/slogging"
)

// TokenValidator verifies a credential token and extracts its subject
// identity. Signature and expiry are checked; the validator has no side
// effects. Implemented by auth.Service.
type TokenValidator interface {
	ExtractUsername(token string) (string, error)
}

// IdentityResolver resolves a display username to its account. Implemented
// by auth.Service.
type IdentityResolver interface {
	FindByUsername(ctx context.Context, username string) (*auth.User, error)
}

// ConnectionAuthenticator resolves and caches the authenticated identity for
// a connection's lifetime. Authentication is permissive: a missing or
// invalid token never rejects the connection or the frame; the connection
// simply stays unauthenticated and individual handlers decide what that
// means for them.
type ConnectionAuthenticator struct {
	validator TokenValidator
}

// NewConnectionAuthenticator creates an authenticator over the token validator
func NewConnectionAuthenticator(validator TokenValidator) *ConnectionAuthenticator {
	return &ConnectionAuthenticator{validator: validator}
}

// sessionTokenKey is the session attribute under which the credential is cached
const sessionTokenKey = "token"

// HandshakeCheck runs before the channel is established, at HTTP-upgrade
// time. It looks for a token in the `token` query parameter, then in the
// Authorization header, and on successful validation returns handshake
// attributes carrying (token, username) to seed the connection's session.
// The upgrade always proceeds regardless of outcome.
func (a *ConnectionAuthenticator) HandshakeCheck(r *http.Request) map[string]string {
	attrs := make(map[string]string)

	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerValue(r.Header.Get("Authorization"))
	}
	if token == "" {
		slogging.Get().Debug("Websocket handshake: no token provided")
		return attrs
	}

	username, err := a.validator.ExtractUsername(token)
	if err != nil {
		slogging.Get().Debug("Websocket handshake: invalid token: %v", err)
		return attrs
	}

	attrs[sessionTokenKey] = token
	attrs["username"] = username
	slogging.Get().Debug("Websocket handshake: token found for user")
	return attrs
}

// AuthenticateOnOpen runs on the channel-open frame. The token is located by
// trying, in order: the session attributes seeded by the handshake, the
// frame's Authorization header, and a `token=` key embedded in a raw query
// header (for transports that cannot set custom headers). On success the
// identity is attached to the connection and the token cached for reuse;
// on failure the connection proceeds unauthenticated.
func (a *ConnectionAuthenticator) AuthenticateOnOpen(client *WebSocketClient, frame *Frame) {
	sess := client.Session
	if sess.Authenticated() {
		return
	}

	token := sess.Attributes[sessionTokenKey]
	if token == "" {
		token = bearerValue(frame.Headers["Authorization"])
	}
	if token == "" {
		token = tokenFromQueryHeader(frame.Headers["query"])
	}
	a.resolve(client, token, "connect")
}

// AuthenticateOnFrame runs on every non-open frame. Frames from an already
// authenticated connection pass through unchanged; otherwise the token
// lookup is repeated against the session attributes and then the header.
func (a *ConnectionAuthenticator) AuthenticateOnFrame(client *WebSocketClient, frame *Frame) {
	sess := client.Session
	if sess.Authenticated() {
		return
	}

	token := sess.Attributes[sessionTokenKey]
	if token == "" {
		token = bearerValue(frame.Headers["Authorization"])
	}
	a.resolve(client, token, frame.Command)
}

func (a *ConnectionAuthenticator) resolve(client *WebSocketClient, token, command string) {
	logger := slogging.Get()
	if token == "" {
		logger.Debug("No token found for %s frame on connection %s", command, client.ID)
		return
	}

	username, err := a.validator.ExtractUsername(token)
	if err != nil {
		logger.Debug("Token validation failed for %s frame on connection %s: %v", command, client.ID, err)
		return
	}

	sess := client.Session
	sess.Username = username
	sess.Token = token
	sess.Attributes[sessionTokenKey] = token
	logger.Debug("Authenticated connection %s on %s frame", client.ID, command)
}

// bearerValue strips the Bearer prefix from an Authorization header value
func bearerValue(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// tokenFromQueryHeader extracts the token= value from a raw query string
// carried in a frame header. Compatibility fallback for transports that
// cannot set custom headers.
func tokenFromQueryHeader(query string) string {
	if query == "" {
		return ""
	}
	idx := strings.Index(query, "token=")
	if idx < 0 {
		return ""
	}
	token := query[idx+len("token="):]
	if amp := strings.Index(token, "&"); amp >= 0 {
		token = token[:amp]
	}
	return token
}
