package grpcauth

import (
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Credentials returns TLS transport credentials when enableTLS is set and
// plaintext otherwise. caFile, when not empty, replaces the system roots.
func Credentials(enableTLS bool, caFile string) (credentials.TransportCredentials, error) {
	if !enableTLS {
		return insecure.NewCredentials(), nil
	}
	if caFile == "" {
		return credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}), nil
	}

	creds, err := credentials.NewClientTLSFromFile(caFile, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}
	return creds, nil
}

// NewConn creates a client connection to address whose calls are logged
// and carry the session's bearer token.
func NewConn(
	address string,
	creds credentials.TransportCredentials,
	interceptor *Interceptor,
	logging *Logging,
	opts ...grpc.DialOption,
) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithChainUnaryInterceptor(
			logging.HandleGRPC,
			interceptor.UnaryClientInterceptor(),
		),
		grpc.WithChainStreamInterceptor(
			interceptor.StreamClientInterceptor(),
		),
	}, opts...)

	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client: %w", err)
	}
	return conn, nil
}
