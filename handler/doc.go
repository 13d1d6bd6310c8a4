// Package handler adapts typed request handlers to net/http.
//
// A HandlerFunc receives a Context and a request struct filled by binders,
// and returns a Response. Errors, from binding or from Fail, go through one
// ErrorHandler that renders a JSON ErrorBody:
//
//	type verifyRequest struct {
//		Key string `query:"key" validate:"required"`
//	}
//
//	func (h *handlers) verify(ctx handler.Context, req verifyRequest) handler.Response {
//		status, err := h.svc.VerifyLicense(ctx, req.Key)
//		if err != nil {
//			return handler.Fail(err)
//		}
//		return handler.JSON(http.StatusOK, status)
//	}
//
//	r.Get("/licenses/verify", handler.Wrap(h.verify,
//		handler.WithBinders(binder.Query()),
//		handler.WithErrorHandler(handler.NewErrorHandler(log, classify)),
//	))
//
// A Classifier lets a module map its own error kinds to statuses; unknown
// errors fall back to ClassifyError and become 500s.
package handler
