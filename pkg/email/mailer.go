package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

type SendEmailParams struct {
	SendTo   string `json:"send_to" validate:"required,email"` // Email address of the recipient
	Subject  string `json:"subject" validate:"required"`       // Subject of the email
	BodyHTML string `json:"body_html" validate:"required"`     // HTML body of the email
	Tag      string `json:"tag,omitempty"`                     // Optional
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate trims the fields and checks them. Errors wrap ErrInvalidParams and
// name the first offending field.
func (p SendEmailParams) Validate() error {
	p.SendTo = strings.TrimSpace(p.SendTo)
	p.Subject = strings.TrimSpace(p.Subject)
	p.BodyHTML = strings.TrimSpace(p.BodyHTML)

	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "email" {
			return fmt.Errorf("%w: %s must be a valid email address", ErrInvalidParams, fe.Field())
		}
		return fmt.Errorf("%w: %s is required", ErrInvalidParams, fe.Field())
	}
	return errors.Join(ErrInvalidParams, err)
}

func validAddress(addr string) bool {
	return validate.Var(addr, "required,email") == nil
}
