// Package notify delivers password reset links to users.
package notify

import (
	"context"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/logging"
)

// Sender delivers a reset link carrying token to email. Delivery problems
// are returned wrapped in common.ErrDeliveryFailed.
type Sender interface {
	SendResetLink(ctx context.Context, email, token string) error
}

// ResetLink appends the token to base as a query parameter.
func ResetLink(base, token string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

// LogSender writes the link to the log instead of mailing it. Meant for
// local development only.
type LogSender struct {
	logger       logging.Logger
	resetURLBase string
}

func NewLogSender(l logging.Logger, resetURLBase string) *LogSender {
	return &LogSender{logger: l.With("module", "notify"), resetURLBase: resetURLBase}
}

func (s *LogSender) SendResetLink(ctx context.Context, email, token string) error {
	s.logger.Info(ctx, "password reset link", "email", email, "link", ResetLink(s.resetURLBase, token))
	return nil
}
