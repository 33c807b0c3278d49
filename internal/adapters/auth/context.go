package auth

import "context"

type tokenKey struct{}

// WithAccessToken attaches the signed-in user's access token to ctx so
// backend calls run as that user instead of the anonymous role.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// AccessToken returns the token attached by WithAccessToken, or "".
func AccessToken(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}
