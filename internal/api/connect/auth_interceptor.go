package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
)

const (
	// AdminTokenHeader is the header name for admin authentication token.
	AdminTokenHeader = "X-Admin-Token"
)

// adminProcedures control the device and need the admin token.
var adminProcedures = map[string]bool{
	ResumeProcedure:      true,
	PauseProcedure:       true,
	SkipProcedure:        true,
	SetDeviceProcedure:   true,
	ClearDeviceProcedure: true,
}

// NewAdminAuthInterceptor creates an interceptor that validates the admin
// token on playback control procedures. An empty token disables the check.
func NewAdminAuthInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if token == "" || !adminProcedures[req.Spec().Procedure] {
				return next(ctx, req)
			}

			got := req.Header().Get(AdminTokenHeader)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return nil, connect.NewError(connect.CodeUnauthenticated, nil)
			}
			return next(ctx, req)
		}
	}
}
