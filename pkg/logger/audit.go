package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event names.
const (
	EventLogin                 = "login"
	EventLogout                = "logout"
	EventAccountLocked         = "account_locked"
	EventSecondFactorVerify    = "2fa_verify"
	EventSecondFactorLocked    = "2fa_locked"
	EventSecondFactorSetup     = "2fa_setup"
	EventSecondFactorEnabled   = "2fa_enabled"
	EventSecondFactorDisabled  = "2fa_disabled"
	EventPasswordChangeRequest = "password_change_requested"
	EventPasswordChanged       = "password_changed"
	EventAdminManagementLogin  = "admin_management_login"
	EventAdminManagementLogout = "admin_management_logout"
	EventAdminManagementDenied = "admin_management_denied"
	EventAdminCreated          = "admin_created"
	EventAdminDeleted          = "admin_deleted"
)

// Client identifies the remote party of a request.
type Client struct {
	IPAddress string
	UserAgent string
}

type clientKey struct{}

// WithClient stores the request's client on ctx.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFrom returns the client stored on ctx, or the zero Client.
func ClientFrom(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c
}

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	AccountID     string
	Email         string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security audit records through slog.
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// Log records event, tagging it with the client carried on ctx. Failed events
// are written at warn level.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}

	client := ClientFrom(ctx)
	if client.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", client.IPAddress))
	}
	if client.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", client.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// Success is shorthand for a successful event.
func (al *AuditLogger) Success(ctx context.Context, eventType, accountID string) {
	al.Log(ctx, AuditEvent{EventType: eventType, AccountID: accountID, Success: true})
}

// Failure is shorthand for a failed event with a reason.
func (al *AuditLogger) Failure(ctx context.Context, eventType, accountID, reason string) {
	al.Log(ctx, AuditEvent{EventType: eventType, AccountID: accountID, FailureReason: reason})
}
