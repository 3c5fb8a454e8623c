package shared

import "context"

type tokenContextKey struct{}

// ContextWithAPIClient marks the request as authenticated through the API token.
func ContextWithAPIClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, client)
}

// APIClientFromContext returns the authenticated API client label, if any.
func APIClientFromContext(ctx context.Context) string {
	client, _ := ctx.Value(tokenContextKey{}).(string)
	return client
}
