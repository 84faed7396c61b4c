package cli

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/client/client"
	"github.com/dmitrijs2005/gophauth/internal/client/config"
	pb "github.com/dmitrijs2005/gophauth/internal/proto"
)

// AuthClient is the part of client.GRPCClient the shell uses.
type AuthClient interface {
	SignUp(ctx context.Context, email, password, firstName, lastName string) (*pb.User, error)
	Login(ctx context.Context, email, password string) (*pb.LoginResponse, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) (string, error)
	ValidateToken(ctx context.Context, accessToken string) (*pb.ValidateTokenResponse, error)
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
	Close() error
}

// getPassword is swapped in tests.
var getPassword = GetPassword

type App struct {
	client AuthClient
	reader *bufio.Reader
	out    io.Writer
	email  string
}

func NewApp(c *config.Config) (*App, error) {
	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr, client.WithRequestTimeout(c.RequestTimeout))
	if err != nil {
		return nil, err
	}
	return newApp(apiClient, os.Stdin, os.Stdout), nil
}

func newApp(c AuthClient, in io.Reader, out io.Writer) *App {
	return &App{client: c, reader: bufio.NewReader(in), out: out}
}

// Run blocks until the user exits, input ends or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.client.Close()
	return a.repl(ctx)
}

func (a *App) isLoggedIn() bool {
	return a.email != ""
}
