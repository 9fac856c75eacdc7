package grpcauth

import (
	"context"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/selector"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dtroode/expensekeeper-client/internal/auth"
	"github.com/dtroode/expensekeeper-client/internal/logger"
	"github.com/dtroode/expensekeeper-client/internal/model"
)

const metadataAuthorization = "authorization"

// Interceptor attaches bearer tokens to outgoing calls and recovers unary
// calls from expired tokens with at most one retry.
type Interceptor struct {
	guard    *auth.Guard
	excluded []string
	logger   *logger.Logger
}

// NewInterceptor creates an Interceptor. Methods of the services named in
// excluded (for example "api.Auth") bypass token handling entirely.
func NewInterceptor(guard *auth.Guard, excluded []string, logger *logger.Logger) *Interceptor {
	prefixes := make([]string, 0, len(excluded))
	for _, svc := range excluded {
		if svc == "" {
			continue
		}
		prefixes = append(prefixes, "/"+strings.Trim(svc, "/")+"/")
	}
	return &Interceptor{guard: guard, excluded: prefixes, logger: logger}
}

func (i *Interceptor) authenticated(_ context.Context, c interceptors.CallMeta) bool {
	for _, p := range i.excluded {
		if strings.HasPrefix(c.FullMethod(), p) {
			return false
		}
	}
	return true
}

// UnaryClientInterceptor returns the unary interceptor restricted to
// authenticated methods.
func (i *Interceptor) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return selector.UnaryClientInterceptor(i.unary, selector.MatchFunc(i.authenticated))
}

// StreamClientInterceptor returns the stream interceptor restricted to
// authenticated methods. Streams are never retried.
func (i *Interceptor) StreamClientInterceptor() grpc.StreamClientInterceptor {
	return selector.StreamClientInterceptor(i.stream, selector.MatchFunc(i.authenticated))
}

func (i *Interceptor) unary(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	token, attached := i.guard.Credential()

	err := invoker(withToken(ctx, token, attached), method, req, reply, cc, opts...)
	if status.Code(err) != codes.Unauthenticated {
		return err
	}

	action, retryToken := i.guard.Assess(token, attached)
	i.logger.Debug("call unauthenticated", "method", method, "action", action.String())

	switch action {
	case auth.ActionPropagate:
		return err
	case auth.ActionRefresh:
		refreshed, ok := i.guard.Refresh(ctx, token)
		if !ok {
			if ctx.Err() != nil {
				return status.FromContextError(ctx.Err()).Err()
			}
			return status.Error(codes.Unauthenticated, "authentication required")
		}
		retryToken = refreshed
	}

	i.guard.Retried(ctx, "grpc", action)
	return invoker(withToken(ctx, retryToken, true), method, req, reply, cc, opts...)
}

func (i *Interceptor) stream(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	token, attached := i.guard.Credential()
	return streamer(withToken(ctx, token, attached), desc, cc, method, opts...)
}

// withToken replaces any authorization entry in the outgoing metadata.
func withToken(ctx context.Context, token model.Token, attached bool) context.Context {
	if !attached {
		return ctx
	}
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	md.Set(metadataAuthorization, "Bearer "+token.AccessToken)
	return metadata.NewOutgoingContext(ctx, md)
}
