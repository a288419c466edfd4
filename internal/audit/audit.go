package audit

import (
	"context"

	"github.com/ymliu/convo/pkg/log"
)

// Audit actions.
const (
	ActionSignup      = "user.signup"
	ActionLogin       = "user.login"
	ActionLoginFailed = "user.login_failed"
	ActionCreateRoom  = "room.create"
	ActionJoinRoom    = "chat.join"
	ActionLeaveRoom   = "chat.leave"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID uint, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Uint(log.FieldUserID, userID).
		Msg(msg)
}

// LogWithDetail emits an audit log with an extra detail field.
func LogWithDetail(ctx context.Context, action string, userID uint, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Uint(log.FieldUserID, userID).
		Str(FieldDetail, detail).
		Msg(msg)
}
