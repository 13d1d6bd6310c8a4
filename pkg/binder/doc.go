// Package binder fills request structs from the parts of an HTTP request.
//
// Each binder reads one source and only touches fields tagged for it:
//
//	type cancelRequest struct {
//		ID     uuid.UUID `path:"id"`
//		Reason string    `json:"reason"`
//	}
//
//	handler.Wrap(cancel, handler.WithBinders(
//		binder.Path(chi.URLParam),
//		binder.JSON(binder.DefaultMaxJSONSize),
//	))
//
// Path and Query support strings, integers, booleans, pointers to those and
// any type implementing encoding.TextUnmarshaler (uuid.UUID included).
// JSON is strict: unknown fields, trailing data and oversized bodies fail.
package binder
