// Package httputil provides HTTP helpers shared by the partnerauth handlers.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteErrorMessage(w, http.StatusNotFound, "unknown provider")
//	httputil.WriteNoContent(w)
//
// # Request Parsing
//
//	var req SyncRequest
//	if err := httputil.ParseJSON(r, &req); err != nil {
//		// answer 400 in the endpoint's own error shape
//	}
//	provider, err := httputil.ParsePathString(r, "provider")
//
// # Middleware
//
//	handler = httputil.Chain(
//		observability.TracingMiddleware("partnerauth"),
//		corsMiddleware,
//	)(router)
//
// Chain applies its first argument outermost.
//
// RequestIDMiddleware stores the request id and client address in the
// request context; LoggingMiddleware puts a request-scoped logger there so
// handlers can call observability.FromContext.
package httputil
