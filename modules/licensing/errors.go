package licensing

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrymomot/keygate/handler"
	"github.com/dmitrymomot/keygate/pkg/licensing"
)

var errUnauthenticated = handler.NewHTTPError(http.StatusUnauthorized, "authentication required")

// validationError carries request validation failures as one message.
type validationError struct {
	fields []string
}

func (e validationError) Error() string {
	return "invalid request: " + strings.Join(e.fields, "; ")
}

func newValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			fields = append(fields, fe.Field()+" is required")
		case "oneof":
			fields = append(fields, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		case "max":
			fields = append(fields, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			fields = append(fields, fe.Field()+" is invalid")
		}
	}
	return validationError{fields: fields}
}

// classify maps licensing error kinds onto HTTP statuses. Messages come from
// the specific error, never from wrapped infrastructure errors.
func classify(err error) (handler.ErrorInfo, bool) {
	var verr validationError
	if errors.As(err, &verr) {
		return handler.ErrorInfo{Status: http.StatusBadRequest, Message: verr.Error()}, true
	}

	kind := licensing.KindOf(err)
	if kind == nil {
		return handler.ErrorInfo{}, false
	}
	message := kind.Error()
	var specific *licensing.Error
	if errors.As(err, &specific) {
		message = specific.Reason()
	}

	switch kind {
	case licensing.ErrValidation:
		return handler.ErrorInfo{Status: http.StatusBadRequest, Message: message}, true
	case licensing.ErrNotFound:
		return handler.ErrorInfo{Status: http.StatusNotFound, Message: message}, true
	case licensing.ErrUnauthenticated:
		return handler.ErrorInfo{Status: http.StatusUnauthorized, Message: message}, true
	case licensing.ErrForbidden:
		return handler.ErrorInfo{Status: http.StatusForbidden, Message: message}, true
	case licensing.ErrPolicyRejected:
		return handler.ErrorInfo{Status: http.StatusConflict, Message: kind.Error(), Reason: message}, true
	case licensing.ErrConflict:
		return handler.ErrorInfo{Status: http.StatusConflict, Message: message}, true
	case licensing.ErrCollaborator:
		return handler.ErrorInfo{Status: http.StatusBadGateway, Message: message}, true
	}
	return handler.ErrorInfo{}, false
}
