package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"

	"cutline/internal/config"
)

const DefaultAuthTimeout = 3 * time.Minute

// GDriveAuthAction runs the OAuth consent flow on a loopback callback and
// prints the refresh token to put in GDRIVE_REFRESH_TOKEN.
func GDriveAuthAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return err
	}
	if cfg.Storage.GDrive.ClientID == "" || cfg.Storage.GDrive.ClientSecret == "" {
		return fmt.Errorf("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET are required")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen for callback: %w", err)
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", port)

	conf := &oauth2.Config{
		ClientID:     cfg.Storage.GDrive.ClientID,
		ClientSecret: cfg.Storage.GDrive.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
		RedirectURL:  redirectURL,
	}

	state := randomState()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{
		Handler:      callbackHandler(state, codeCh, errCh),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	// offline access plus forced consent so Google returns a refresh token
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(stdout, "Open this URL in your browser:\n\n%s\n\nWaiting for authorization on %s\n", authURL, redirectURL)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return err
	case <-time.After(cmd.Duration("timeout")):
		return fmt.Errorf("timed out waiting for authorization")
	case <-ctx.Done():
		return ctx.Err()
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	if strings.TrimSpace(tok.RefreshToken) == "" {
		return fmt.Errorf("no refresh token returned; revoke the app at https://myaccount.google.com/permissions and retry")
	}

	fmt.Fprintf(stdout, "\nGDRIVE_REFRESH_TOKEN=%s\n", tok.RefreshToken)
	return nil
}

func callbackHandler(state string, codeCh chan<- string, errCh chan<- error) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		fail := func(msg string) {
			http.Error(w, msg, http.StatusBadRequest)
			select {
			case errCh <- fmt.Errorf("%s", msg):
			default:
			}
		}
		if q.Get("state") != state {
			fail("invalid state")
			return
		}
		if e := q.Get("error"); e != "" {
			fail("auth error: " + e)
			return
		}
		code := q.Get("code")
		if code == "" {
			fail("missing code")
			return
		}

		fmt.Fprintln(w, "Authorized. You can close this window and return to the terminal.")
		select {
		case codeCh <- code:
		default:
		}
	})
	return mux
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
