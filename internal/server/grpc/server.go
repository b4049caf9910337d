// Package grpc serves the keyvault.v1.VaultStore API: account sign-up and
// sign-in, and per-user access to the encrypted vault held by a
// store.RecordStore.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/api"
	"github.com/dmitrijs2005/keyvault/internal/logging"
	"github.com/dmitrijs2005/keyvault/internal/server/models"
	"github.com/dmitrijs2005/keyvault/internal/server/services"
	"github.com/dmitrijs2005/keyvault/internal/store"
	"google.golang.org/grpc"
)

// AccountService is the account logic the handlers rely on.
type AccountService interface {
	SignUp(ctx context.Context, username, password string) (*models.Account, error)
	SignIn(ctx context.Context, username, password string) (*services.Token, error)
}

type GRPCServer struct {
	address   string
	accounts  AccountService
	records   store.RecordStore
	logger    logging.Logger
	jwtSecret []byte
	now       func() time.Time
}

var _ api.VaultStoreServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, accounts AccountService, records store.RecordStore, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		accounts:  accounts,
		records:   records,
		jwtSecret: []byte(secretKey),
		now:       time.Now,
	}
}

// NewServer returns a grpc.Server with the service and its interceptors
// registered, ready to Serve on any listener.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor),
	}, opts...)

	srv := grpc.NewServer(opts...)
	api.RegisterVaultStoreServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
