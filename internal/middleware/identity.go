// internal/middleware/identity.go
package middleware

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/gurkanbulca/collabdesk/internal/models"
)

// Metadata keys set by the identity provider in front of the service
const (
	MetadataUserID    = "x-user-id"
	MetadataUserName  = "x-user-name"
	MetadataUserEmail = "x-user-email"
	MetadataUserRole  = "x-user-role"
)

// ContextKeys for storing request metadata
type ContextKey string

const (
	ContextKeyActor     ContextKey = "actor"
	ContextKeyIPAddress ContextKey = "ip_address"
	ContextKeyUserAgent ContextKey = "user_agent"
)

// IdentityInterceptor turns identity metadata into a models.Actor on the context
type IdentityInterceptor struct {
	publicMethods map[string]bool
}

// NewIdentityInterceptor creates a new identity interceptor
func NewIdentityInterceptor() *IdentityInterceptor {
	// Define which methods don't require an identity
	publicMethods := map[string]bool{
		"/grpc.health.v1.Health/Check": true,
	}

	return &IdentityInterceptor{publicMethods: publicMethods}
}

// Unary returns a unary server interceptor for identity extraction
func (i *IdentityInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		ctx = enrichContext(ctx)
		if i.publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		newCtx, err := i.identify(ctx)
		if err != nil {
			return nil, err
		}
		return handler(newCtx, req)
	}
}

func (i *IdentityInterceptor) identify(ctx context.Context) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}

	actor := models.Actor{
		UID:         firstValue(md, MetadataUserID),
		DisplayName: firstValue(md, MetadataUserName),
		Email:       firstValue(md, MetadataUserEmail),
		Role:        models.Role(strings.ToLower(firstValue(md, MetadataUserRole))),
	}
	if actor.UID == "" {
		return nil, status.Error(codes.Unauthenticated, "missing user identity")
	}
	if actor.Role == "" {
		actor.Role = models.RoleCollaborator
	}
	if !actor.Role.IsValid() {
		return nil, status.Errorf(codes.Unauthenticated, "unknown role %q", actor.Role)
	}

	return ContextWithActor(ctx, actor), nil
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

// enrichContext extracts IP address and user agent from the context
func enrichContext(ctx context.Context) context.Context {
	if ip := extractIPAddress(ctx); ip != "" {
		ctx = context.WithValue(ctx, ContextKeyIPAddress, ip)
	}
	if ua := extractUserAgent(ctx); ua != "" {
		ctx = context.WithValue(ctx, ContextKeyUserAgent, ua)
	}
	return ctx
}

// extractIPAddress extracts the client IP address from the context
func extractIPAddress(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}

	if tcpAddr, ok := p.Addr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}

	addr := p.Addr.String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// extractUserAgent extracts the user agent from gRPC metadata
func extractUserAgent(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, header := range []string{"user-agent", "grpc-user-agent", "x-user-agent"} {
		if values := md.Get(header); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// ContextWithActor stores the calling actor on ctx
func ContextWithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// ActorFromContext returns the calling actor
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(ContextKeyActor).(models.Actor)
	return actor, ok
}

// GetIPAddressFromContext extracts IP address from context
func GetIPAddressFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyIPAddress).(string); ok {
		return ip
	}
	return ""
}

// GetUserAgentFromContext extracts user agent from context
func GetUserAgentFromContext(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}
