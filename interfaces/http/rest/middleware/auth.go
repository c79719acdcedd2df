package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"decivue/pkg/auth"
	pkgerrors "decivue/pkg/errors"
)

// ClaimsExtractor returns a user already authenticated upstream, e.g. by
// an API Gateway JWT authorizer.
type ClaimsExtractor func(ctx context.Context) (*auth.UserContext, bool)

// Authenticate requires a valid bearer token and stores the caller in the
// request context. When trusted is set and yields a user, token
// validation is skipped.
func Authenticate(validator *auth.JWTValidator, trusted ClaimsExtractor, errs *pkgerrors.ErrorHandler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if trusted != nil {
				if user, ok := trusted(r.Context()); ok && user.UserID != "" {
					next.ServeHTTP(w, r.WithContext(auth.SetUserInContext(r.Context(), user)))
					return
				}
			}

			token, err := extractToken(r)
			if err != nil {
				errs.Handle(w, r, pkgerrors.NewUnauthorizedError(err.Error()))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				message := "Invalid token"
				switch {
				case errors.Is(err, auth.ErrExpiredToken):
					message = "Token has expired"
				case errors.Is(err, auth.ErrInvalidSignature):
					message = "Invalid token signature"
				}
				errs.Handle(w, r, pkgerrors.NewUnauthorizedError(message))
				return
			}

			ctx := auth.SetUserInContext(r.Context(), &auth.UserContext{
				UserID: claims.UserID(),
				Email:  claims.Email,
				Role:   claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("Missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("Invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}
