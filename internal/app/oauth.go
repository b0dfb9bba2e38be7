package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

type OAuthLogger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// DriveAuthServer walks an operator through the OAuth consent flow once and
// prints the refresh token to put into GDRIVE_REFRESH_TOKEN.
type DriveAuthServer struct {
	config *oauth2.Config
	logger OAuthLogger
	state  string
	tokens chan *oauth2.Token
	server *http.Server
}

func NewDriveAuthServer(logger OAuthLogger, clientSecretPath string) (*DriveAuthServer, error) {
	if clientSecretPath == "" {
		return nil, errors.New("GDRIVE_CLIENT_SECRET_FILE is not set")
	}

	b, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}

	return newDriveAuthServer(cfg, logger)
}

func newDriveAuthServer(cfg *oauth2.Config, logger OAuthLogger) (*DriveAuthServer, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}
	return &DriveAuthServer{
		config: cfg,
		logger: logger,
		state:  hex.EncodeToString(buf),
		tokens: make(chan *oauth2.Token, 1),
	}, nil
}

func (s *DriveAuthServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/google/drive", func(w http.ResponseWriter, r *http.Request) {
		authURL := s.config.AuthCodeURL(s.state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
	})

	mux.HandleFunc("GET /auth/google/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != s.state {
			http.Error(w, "invalid state parameter", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}

		token, err := s.config.Exchange(r.Context(), code)
		if err != nil {
			http.Error(w, fmt.Sprintf("token exchange failed: %v", err), http.StatusInternalServerError)
			return
		}

		if token.RefreshToken == "" {
			fmt.Fprintln(w, "No refresh token returned. Revoke app access and authorize again.")
			return
		}

		fmt.Fprintf(w, "GDRIVE_REFRESH_TOKEN=%s\n", token.RefreshToken)
		select {
		case s.tokens <- token:
		default:
		}
	})

	return mux
}

// Run serves the consent flow on addr until a refresh token is obtained or
// ctx is done, and returns the token.
func (s *DriveAuthServer) Run(ctx context.Context, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("OAuth server error: %v", err)
		}
	}()
	s.logger.Infof("Open http://%s/auth/google/drive to authorize Google Drive access", ln.Addr())

	var refresh string
	select {
	case token := <-s.tokens:
		refresh = token.RefreshToken
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return refresh, fmt.Errorf("failed to shutdown OAuth server: %w", err)
	}

	if refresh == "" {
		return "", ctx.Err()
	}
	return refresh, nil
}
