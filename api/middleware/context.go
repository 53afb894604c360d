package middleware

import "context"

type principalKey struct{}

// Principal is the authenticated caller attached by Auth.
type Principal struct {
	UserID   string
	Role     string
	AccessID string
}

// PrincipalFromContext returns the caller, or the zero Principal on
// unauthenticated routes.
func PrincipalFromContext(ctx context.Context) Principal {
	if ctx == nil {
		return Principal{}
	}
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

func UserIDFromContext(ctx context.Context) string { return PrincipalFromContext(ctx).UserID }

func RoleFromContext(ctx context.Context) string { return PrincipalFromContext(ctx).Role }

// AccessIDFromContext returns the jti of the access credential that authenticated the request.
func AccessIDFromContext(ctx context.Context) string { return PrincipalFromContext(ctx).AccessID }

// WithUserID, WithRole and WithAccessID amend one field of the principal. Tests
// use them to fake an authenticated caller.
func WithUserID(ctx context.Context, userID string) context.Context {
	p := PrincipalFromContext(ctx)
	p.UserID = userID
	return WithPrincipal(ctx, p)
}

func WithRole(ctx context.Context, role string) context.Context {
	p := PrincipalFromContext(ctx)
	p.Role = role
	return WithPrincipal(ctx, p)
}

func WithAccessID(ctx context.Context, accessID string) context.Context {
	p := PrincipalFromContext(ctx)
	p.AccessID = accessID
	return WithPrincipal(ctx, p)
}
