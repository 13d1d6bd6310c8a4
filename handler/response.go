package handler

import (
	"encoding/json"
	"net/http"
)

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSON responds with v encoded as JSON.
func JSON(status int, v any) Response {
	return jsonResponse{status: status, body: v}
}

type failure struct{ err error }

func (f failure) Render(http.ResponseWriter, *http.Request) error { return f.err }

// Fail hands err to the route's ErrorHandler without writing anything.
func Fail(err error) Response {
	if err == nil {
		err = ErrNilResponse
	}
	return failure{err: err}
}
