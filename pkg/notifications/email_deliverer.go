package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/keygate/pkg/email"
	"github.com/dmitrymomot/keygate/pkg/email/templates"
	"github.com/dmitrymomot/keygate/pkg/licensing"
)

// ErrNoRecipient is returned by a RecipientResolver that knows no address for
// the user. The email channel skips such users silently.
var ErrNoRecipient = errors.New("no email address for user")

// RecipientResolver maps a user id to an email address. Accounts live outside
// this service, so the application supplies the lookup.
type RecipientResolver interface {
	EmailFor(ctx context.Context, userID uuid.UUID) (string, error)
}

// RecipientResolverFunc adapts a function to RecipientResolver.
type RecipientResolverFunc func(ctx context.Context, userID uuid.UUID) (string, error)

func (f RecipientResolverFunc) EmailFor(ctx context.Context, userID uuid.UUID) (string, error) {
	return f(ctx, userID)
}

// EmailDeliverer renders a license email and sends it.
type EmailDeliverer struct {
	sender    email.EmailSender
	resolver  RecipientResolver
	actionURL string
}

// EmailOption configures an EmailDeliverer.
type EmailOption func(*EmailDeliverer)

// WithActionURL adds a button linking to the account page.
func WithActionURL(url string) EmailOption {
	return func(d *EmailDeliverer) { d.actionURL = url }
}

// NewEmailDeliverer creates the email channel. Panics if sender or resolver is nil.
func NewEmailDeliverer(sender email.EmailSender, resolver RecipientResolver, opts ...EmailOption) *EmailDeliverer {
	if sender == nil || resolver == nil {
		panic("notifications: email sender and recipient resolver are required")
	}
	d := &EmailDeliverer{sender: sender, resolver: resolver}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *EmailDeliverer) Deliver(ctx context.Context, n licensing.Notification) error {
	to, err := d.resolver.EmailFor(ctx, n.UserID)
	if errors.Is(err, ErrNoRecipient) || (err == nil && to == "") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}

	msg := Compose(n)
	html, err := templates.Render(ctx, templates.LicenseNotice(templates.LicenseMessage{
		Subject:   msg.Subject,
		Heading:   msg.Heading,
		Body:      msg.Body,
		Plan:      string(n.Plan),
		ExpiresAt: expiryText(n.ExpiresAt),
		ActionURL: d.actionURL,
		Action:    "Manage licenses",
	}))
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	return d.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   to,
		Subject:  msg.Subject,
		BodyHTML: html,
		Tag:      msg.Tag,
	})
}
