package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/autoschool-chat/internal/audit"
	"github.com/weiawesome/autoschool-chat/internal/config"
	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/internal/hub"
	"github.com/weiawesome/autoschool-chat/internal/service"
	"github.com/weiawesome/autoschool-chat/pkg/log"
	"github.com/weiawesome/autoschool-chat/pkg/middleware"
	"github.com/weiawesome/autoschool-chat/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Result is the outcome of one inbound event. Reply, when set, goes back to
// the originating connection; Err is reported to it as messageError.
type Result struct {
	Reply *domain.OutboundEnvelope
	Err   error
}

func ok(reply *domain.OutboundEnvelope) Result { return Result{Reply: reply} }
func fail(err error) Result                    { return Result{Err: err} }

type WSHandler struct {
	hub          *hub.Hub
	messaging    service.MessagingService
	validator    middleware.TokenValidator
	wsCfg        config.WebSocketConfig
	requireToken bool
}

func NewWSHandler(h *hub.Hub, messaging service.MessagingService, validator middleware.TokenValidator, wsCfg config.WebSocketConfig, authCfg config.AuthConfig) *WSHandler {
	return &WSHandler{
		hub:          h,
		messaging:    messaging,
		validator:    validator,
		wsCfg:        wsCfg,
		requireToken: authCfg.RequireToken,
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/chat/ws", h.HandleWebSocket)
}

// HandleWebSocket authenticates the handshake, upgrades the connection and
// joins it to its identity room and its own connection room.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()

	claim, err := h.handshakeClaim(c)
	if err != nil {
		audit.Failure(ctx, audit.ActionAuthFailed, "", err, "websocket handshake rejected")
		response.Unauthorized(c, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.New().String()
	identity := domain.ResolveIdentity(claim, connID)

	// The request context ends with the handshake; the connection keeps its
	// own logger.
	connCtx := log.WithLogger(context.Background(), log.Ctx(ctx))
	connCtx = log.WithFields(connCtx, log.FieldConnID, connID, log.FieldUserID, identity.ID)

	client := hub.NewClient(connID, identity, h.hub, conn, h.wsCfg)
	if !h.hub.Register(client, identity.ID, hub.ConnectionRoom(connID)) {
		conn.Close()
		return
	}

	if !identity.Resolved() {
		l := log.Ctx(connCtx)
		l.Warn().Msg("no identity claim, using connection id")
	}
	audit.LogWithDetail(connCtx, audit.ActionConnect, identity.ID, string(identity.Source), "client connected")

	client.SendMessage(domain.NewEnvelope(domain.EventConnected, domain.ConnectedPayload{
		UserID:       identity.ID,
		ConnectionID: connID,
		Resolved:     identity.Resolved(),
	}))

	go client.WritePump()
	go func() {
		client.ReadPump(func(cl *hub.Client, message []byte) {
			h.handleMessage(connCtx, cl, message)
		})
		audit.Log(connCtx, audit.ActionDisconnect, identity.ID, "client disconnected")
	}()
}

// handshakeClaim reads the token from the token query parameter or the
// Authorization header. Without a token the claim comes from the userId or
// id query parameters unless tokens are required.
func (h *WSHandler) handshakeClaim(c *gin.Context) (domain.Claim, error) {
	token := c.Query("token")
	if token == "" {
		token, _ = middleware.BearerToken(c.GetHeader(middleware.AuthHeaderKey))
	}

	if token != "" {
		claims, err := h.validator.ValidateToken(token)
		if err != nil {
			return domain.Claim{}, err
		}
		return ClaimFromToken(claims), nil
	}

	if h.requireToken {
		return domain.Claim{}, errMissingToken
	}
	return domain.Claim{
		UserID: c.Query("userId"),
		BareID: c.Query("id"),
	}, nil
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, message []byte) {
	res := h.dispatch(ctx, client, message)

	if res.Err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(res.Err).Msg("event failed")
		client.SendMessage(domain.NewMessageError(res.Err))
		return
	}
	if res.Reply != nil {
		client.SendMessage(res.Reply)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, client *hub.Client, message []byte) Result {
	if !client.Allow() {
		return fail(&domain.Error{Kind: domain.KindRateLimited, Detail: "too many events, slow down"})
	}

	var env domain.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return fail(domain.NewValidationError("type", "invalid message format"))
	}

	ctx = log.WithFields(ctx, log.FieldEvent, env.Type)

	switch env.Type {
	case domain.EventJoinRoom:
		var p domain.JoinRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fail(domain.NewValidationError("roomId", "invalid joinRoom payload"))
		}
		return h.handleJoinRoom(ctx, client, strings.TrimSpace(p.RoomID))

	case domain.EventLeaveRoom:
		var p domain.JoinRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fail(domain.NewValidationError("roomId", "invalid leaveRoom payload"))
		}
		return h.handleLeaveRoom(ctx, client, strings.TrimSpace(p.RoomID))

	case domain.EventSendMessage:
		var req domain.SendMessageRequest
		if len(env.Data) == 0 {
			return fail(domain.NewValidationError("content", "message payload is required"))
		}
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return fail(domain.NewValidationError("content", "invalid sendMessage payload"))
		}
		return h.handleSendMessage(ctx, client, &req)

	case domain.EventMarkAsRead:
		var p domain.MarkAsReadPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("invalid markAsRead payload")
			return ok(nil)
		}
		return h.handleMarkAsRead(ctx, client, &p)

	case domain.EventPing:
		return ok(domain.NewEnvelope(domain.EventPong, nil))

	default:
		return fail(domain.NewValidationError("type", "unknown event type"))
	}
}

func (h *WSHandler) handleJoinRoom(ctx context.Context, client *hub.Client, room string) Result {
	if !h.hub.JoinRoom(client, room) {
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldRoom, room).Msg("ignored join for blank room")
		return ok(nil)
	}
	audit.LogWithDetail(ctx, audit.ActionJoinRoom, client.Identity.ID, room, "joined room")
	return ok(nil)
}

// handleLeaveRoom drops a joined room. Unknown, blank and built-in rooms are
// ignored.
func (h *WSHandler) handleLeaveRoom(ctx context.Context, client *hub.Client, room string) Result {
	if !h.hub.LeaveRoom(client, room) {
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldRoom, room).Msg("ignored leave for room not joined")
		return ok(nil)
	}
	audit.LogWithDetail(ctx, audit.ActionLeaveRoom, client.Identity.ID, room, "left room")
	return ok(nil)
}

// handleSendMessage persists and routes the message. On success the sender
// sees it through the connection room echo, so there is no direct reply.
func (h *WSHandler) handleSendMessage(ctx context.Context, client *hub.Client, req *domain.SendMessageRequest) Result {
	senderID := req.Sender
	if client.Identity.Resolved() {
		senderID = client.Identity.ID
	}

	origin := domain.Origin{ConnID: client.ID, UserID: client.Identity.ID}
	if _, err := h.messaging.SendMessage(ctx, origin, senderID, req); err != nil {
		return fail(err)
	}
	return ok(nil)
}

// handleMarkAsRead is best effort: failures are logged, never reported.
func (h *WSHandler) handleMarkAsRead(ctx context.Context, client *hub.Client, p *domain.MarkAsReadPayload) Result {
	readerID := p.UserID
	if client.Identity.Resolved() {
		readerID = client.Identity.ID
	}

	origin := domain.Origin{ConnID: client.ID, UserID: client.Identity.ID}
	n, err := h.messaging.MarkRead(ctx, origin, readerID, strings.TrimSpace(p.OtherUserID))
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldCounterpartID, p.OtherUserID).Msg("mark as read failed")
		return ok(nil)
	}

	l := log.Ctx(ctx)
	l.Debug().Int64("updated", n).Str(log.FieldCounterpartID, p.OtherUserID).Msg("conversation marked read")
	return ok(nil)
}
