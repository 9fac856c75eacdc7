package grpcauth

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	grpcmwauth "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dtroode/expensekeeper-client/internal/auth"
	"github.com/dtroode/expensekeeper-client/internal/model"
	"github.com/dtroode/expensekeeper-client/internal/testutil"
	"github.com/dtroode/expensekeeper-client/internal/tokenstore"
)

const healthService = "grpc.health.v1.Health"

type refresherFunc func(ctx context.Context, refreshToken string) (model.Token, error)

func (f refresherFunc) Refresh(ctx context.Context, refreshToken string) (model.Token, error) {
	return f(ctx, refreshToken)
}

// syncServer accepts only tokens in valid and records what every call carried.
type syncServer struct {
	mu    sync.Mutex
	valid map[string]bool
	seen  []string
}

func (s *syncServer) authFunc(ctx context.Context) (context.Context, error) {
	token, err := grpcmwauth.AuthFromMD(ctx, "bearer")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, token)

	if err != nil {
		return nil, err
	}
	if !s.valid[token] {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return ctx, nil
}

func (s *syncServer) tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

type fixture struct {
	server       *syncServer
	store        *tokenstore.Store
	health       healthpb.HealthClient
	coordinator  *auth.Coordinator
	refreshCalls *atomic.Int32
}

type fixtureOpts struct {
	initial     *model.Token
	valid       []string
	refreshErr  error
	refreshGate chan struct{}
	excluded    []string
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()

	srv := &syncServer{valid: map[string]bool{}}
	for _, v := range o.valid {
		srv.valid[v] = true
	}

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcmwauth.UnaryServerInterceptor(srv.authFunc)),
		grpc.ChainStreamInterceptor(grpcmwauth.StreamServerInterceptor(srv.authFunc)),
	)
	healthpb.RegisterHealthServer(gs, health.NewServer())
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	lg := testutil.MakeNoopLogger()
	store := tokenstore.New(nil)
	if o.initial != nil {
		require.NoError(t, store.Set(context.Background(), *o.initial))
	}

	var calls atomic.Int32
	refresher := refresherFunc(func(context.Context, string) (model.Token, error) {
		calls.Add(1)
		if o.refreshGate != nil {
			<-o.refreshGate
		}
		if o.refreshErr != nil {
			return model.Token{}, o.refreshErr
		}
		return model.Token{AccessToken: "tok2", ExpiresAt: time.Now().Add(time.Hour)}, nil
	})

	coordinator := auth.NewCoordinator(store, refresher, auth.CoordinatorConfig{WaitTimeout: time.Second}, nil, lg)
	guard := auth.NewGuard(store, auth.NewTracker(store, nil), coordinator, 30*time.Second, nil, lg)

	conn, err := NewConn("passthrough:///bufnet",
		insecure.NewCredentials(),
		NewInterceptor(guard, o.excluded, lg),
		NewLogging(lg),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &fixture{
		server:       srv,
		store:        store,
		health:       healthpb.NewHealthClient(conn),
		coordinator:  coordinator,
		refreshCalls: &calls,
	}
}

func expired() *model.Token {
	return &model.Token{AccessToken: "tok1", RefreshToken: "r1", ExpiresAt: time.Now().Add(-time.Minute)}
}

func TestInterceptor_AttachesBearerToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOpts{
		initial: &model.Token{AccessToken: "tok1", ExpiresAt: time.Now().Add(time.Hour)},
		valid:   []string{"tok1"},
	})

	resp, err := f.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	assert.Equal(t, []string{"tok1"}, f.server.tokens())
}

func TestInterceptor_RefreshesAndRetriesOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOpts{initial: expired(), valid: []string{"tok2"}})

	_, err := f.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)

	assert.Equal(t, []string{"tok1", "tok2"}, f.server.tokens())
	assert.Equal(t, int32(1), f.refreshCalls.Load())

	got, ok := f.store.Get()
	require.True(t, ok)
	assert.Equal(t, "tok2", got.AccessToken)
}

func TestInterceptor_RetriedCallFailureIsReturned(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOpts{initial: expired()})

	_, err := f.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, []string{"tok1", "tok2"}, f.server.tokens())
	assert.Equal(t, int32(1), f.refreshCalls.Load())
}

func TestInterceptor_RefreshFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOpts{initial: expired(), valid: []string{"tok2"}, refreshErr: model.ErrRefreshRejected})

	_, err := f.health.Check(context.Background(), &healthpb.HealthCheckRequest{})

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.NotContains(t, st.Message(), "rejected")
	assert.Equal(t, []string{"tok1"}, f.server.tokens())

	_, present := f.store.Get()
	assert.False(t, present)
}

func TestInterceptor_CallerCancelDuringRefresh(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	t.Cleanup(func() { close(gate) })
	f := newFixture(t, fixtureOpts{initial: expired(), valid: []string{"tok2"}, refreshGate: gate})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 1)
	go func() {
		_, err := f.health.Check(ctx, &healthpb.HealthCheckRequest{})
		errs <- err
	}()

	require.Eventually(t, func() bool {
		a, ok := f.coordinator.Pending()
		return ok && a.Waiters == 1
	}, 2*time.Second, time.Millisecond)
	cancel()

	assert.Equal(t, codes.Canceled, status.Code(<-errs))
	assert.Equal(t, []string{"tok1"}, f.server.tokens())
}

func TestInterceptor_ValidTokenIsNotRefreshed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOpts{
		initial: &model.Token{AccessToken: "tok1", RefreshToken: "r1", ExpiresAt: time.Now().Add(time.Hour)},
	})

	_, err := f.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, []string{"tok1"}, f.server.tokens())
	assert.Equal(t, int32(0), f.refreshCalls.Load())
}

func TestInterceptor_ExcludedServiceBypassesAuth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOpts{initial: expired(), valid: []string{"tok2"}, excluded: []string{healthService}})

	_, err := f.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, []string{""}, f.server.tokens())
	assert.Equal(t, int32(0), f.refreshCalls.Load())
}

func TestInterceptor_StreamsAttachWithoutRetry(t *testing.T) {
	t.Parallel()

	t.Run("valid token", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, fixtureOpts{
			initial: &model.Token{AccessToken: "tok1", ExpiresAt: time.Now().Add(time.Hour)},
			valid:   []string{"tok1"},
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		stream, err := f.health.Watch(ctx, &healthpb.HealthCheckRequest{})
		require.NoError(t, err)
		resp, err := stream.Recv()
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
		assert.Equal(t, []string{"tok1"}, f.server.tokens())
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, fixtureOpts{initial: expired(), valid: []string{"tok2"}})

		stream, err := f.health.Watch(context.Background(), &healthpb.HealthCheckRequest{})
		require.NoError(t, err)
		_, err = stream.Recv()
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
		assert.Equal(t, int32(0), f.refreshCalls.Load())
	})
}

func TestCredentials(t *testing.T) {
	t.Parallel()

	plain, err := Credentials(false, "")
	require.NoError(t, err)
	assert.Equal(t, "insecure", plain.Info().SecurityProtocol)

	secure, err := Credentials(true, "")
	require.NoError(t, err)
	assert.Equal(t, "tls", secure.Info().SecurityProtocol)

	_, err = Credentials(true, "/nonexistent/ca.pem")
	assert.Error(t, err)
}
