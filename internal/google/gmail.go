package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"net/mail"
	"net/http"
	"strings"
	"time"

	"taskcal/internal/models"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// MailClient sends notices through the Gmail API.
type MailClient struct {
	service *gmail.Service
	logger  *slog.Logger
}

// NewMailClient creates a client on top of an authenticated HTTP client.
func NewMailClient(ctx context.Context, logger *slog.Logger, httpClient *http.Client, opts ...option.ClientOption) (*MailClient, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &MailClient{service: service, logger: logger}, nil
}

// SendEventNotice emails the details of e to every recipient in to.
func (m *MailClient) SendEventNotice(ctx context.Context, to []string, e *models.Event, loc *time.Location) error {
	if len(to) == 0 {
		return nil
	}
	raw := EventNotice(to, e, loc)
	_, err := m.service.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(raw)),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to send event notice: %w", err)
	}
	m.logger.Info("Sent event notice", "title", e.Title, "recipients", len(to))
	return nil
}

// recipients formats the To header value. Each address is quoted as needed
// so it cannot break out of the header.
func recipients(to []string) string {
	list := make([]string, len(to))
	for i, a := range to {
		list[i] = (&mail.Address{Address: a}).String()
	}
	return strings.Join(list, ", ")
}

// EventNotice renders the RFC 822 message for e.
func EventNotice(to []string, e *models.Event, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", recipients(to))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", "Scheduled: "+e.Title))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	fmt.Fprintf(&b, "%s\r\n\r\n", e.Title)
	fmt.Fprintf(&b, "Start: %s\r\n", e.StartTime.In(loc).Format("Mon 2 Jan 2006 15:04 MST"))
	fmt.Fprintf(&b, "End:   %s\r\n", e.EndTime.In(loc).Format("Mon 2 Jan 2006 15:04 MST"))
	if e.Estimate != "" {
		fmt.Fprintf(&b, "Estimated duration: %s\r\n", e.Estimate)
	}
	if e.Location != "" {
		fmt.Fprintf(&b, "Location: %s\r\n", e.Location)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, "\r\n%s\r\n", e.Description)
	}
	return b.String()
}

// Notifier emails attendees from the Gmail account linked by each user.
type Notifier struct {
	logger *slog.Logger
	config *oauth2.Config
	store  TokenStore
	loc    *time.Location
	opts   []option.ClientOption
}

// NewNotifier creates a Notifier that formats times in loc.
func NewNotifier(logger *slog.Logger, config *oauth2.Config, store TokenStore, loc *time.Location, opts ...option.ClientOption) *Notifier {
	return &Notifier{logger: logger, config: config, store: store, loc: loc, opts: opts}
}

// NotifyAttendees sends the event notice for e to its attendees.
func (n *Notifier) NotifyAttendees(ctx context.Context, userID string, e *models.Event) error {
	httpClient, err := HTTPClient(ctx, n.logger, n.config, n.store, userID)
	if err != nil {
		return err
	}
	mail, err := NewMailClient(ctx, n.logger, httpClient, n.opts...)
	if err != nil {
		return err
	}
	return mail.SendEventNotice(ctx, e.Attendees, e, n.loc)
}
