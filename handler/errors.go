package handler

import (
	"errors"
	"net/http"
)

var ErrNilResponse = errors.New("handler returned nil response")

// HTTPError is an error with a fixed status code and client message.
type HTTPError struct {
	Status  int
	Message string
}

func NewHTTPError(status int, message string) HTTPError {
	if message == "" {
		message = http.StatusText(status)
	}
	return HTTPError{Status: status, Message: message}
}

func (e HTTPError) Error() string { return e.Message }
