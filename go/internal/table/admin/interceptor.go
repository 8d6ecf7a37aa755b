package admin

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/andarbahar/go/internal/auth"
)

var ErrNotAdmin = errors.New("admin role required")

type claimsKey struct{}

// NewAuthInterceptor admits only requests bearing an admin token.
func NewAuthInterceptor(authn *auth.Authenticator) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			claims, err := authn.VerifyHeader(req.Header().Get("Authorization"))
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			if !claims.IsAdmin() {
				log.Warn().
					Str("user_id", claims.UserID).
					Str("procedure", req.Spec().Procedure).
					Msg("non-admin caller rejected")
				return nil, connect.NewError(connect.CodePermissionDenied, ErrNotAdmin)
			}
			return next(context.WithValue(ctx, claimsKey{}, claims), req)
		}
	}
}

// ClaimsFromContext returns the caller verified by the auth interceptor.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims, ok
}
