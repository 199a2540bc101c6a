package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/weiawesome/autoschool-chat/pkg/log"
)

// Audit actions for the messaging gateway.
const (
	ActionConnect     = "chat.connect"
	ActionAuthFailed  = "chat.auth_failed"
	ActionJoinRoom    = "chat.join_room"
	ActionLeaveRoom   = "chat.leave_room"
	ActionSendMessage = "chat.send_message"
	ActionMarkRead    = "chat.mark_read"
	ActionDisconnect  = "chat.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	entry(l.Info(), action, userID).Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field, typically the
// id of the message, room or counterpart acted on.
func LogWithDetail(ctx context.Context, action string, userID string, detail string, msg string) {
	l := log.Ctx(ctx)
	evt := entry(l.Info(), action, userID)
	if detail != "" {
		evt = evt.Str(FieldDetail, detail)
	}
	evt.Msg(msg)
}

// Failure records a rejected action at warn level.
func Failure(ctx context.Context, action string, userID string, err error, msg string) {
	l := log.Ctx(ctx)
	entry(l.Warn(), action, userID).Err(err).Msg(msg)
}

func entry(evt *zerolog.Event, action, userID string) *zerolog.Event {
	evt = evt.
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action)
	if userID != "" {
		evt = evt.Str(log.FieldUserID, userID)
	}
	return evt
}
