package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	// CallbackPort is the port for the OAuth callback server
	CallbackPort = 8089
	// LoginTimeout bounds how long the user has to approve access
	LoginTimeout = 5 * time.Minute
)

// ErrStateMismatch means the callback did not come from our request
var ErrStateMismatch = errors.New("oauth state mismatch")

// CallbackURL is the redirect registered with Strava
func CallbackURL() string {
	return fmt.Sprintf("http://localhost:%d/callback", CallbackPort)
}

const successPage = `<!DOCTYPE html>
<html>
<head><title>Conconi</title></head>
<body style="font-family: system-ui; text-align: center; margin-top: 20vh;">
<h1>Strava connected</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>`

// callback accepts exactly one answer from the authorization page
type callback struct {
	state string
	code  chan string
	err   chan error
}

func newCallback(state string) *callback {
	return &callback{state: state, code: make(chan string, 1), err: make(chan error, 1)}
}

func (c *callback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("state") != c.state:
		c.fail(ErrStateMismatch)
		http.Error(w, "State mismatch", http.StatusBadRequest)
	case q.Get("error") != "":
		c.fail(fmt.Errorf("authorization denied: %s", q.Get("error")))
		http.Error(w, "Authorization failed", http.StatusBadRequest)
	case q.Get("code") == "":
		c.fail(errors.New("no code in callback"))
		http.Error(w, "No authorization code", http.StatusBadRequest)
	default:
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, successPage)
		select {
		case c.code <- q.Get("code"):
		default:
		}
	}
}

func (c *callback) fail(err error) {
	select {
	case c.err <- err:
	default:
	}
}

// Authenticate runs the browser login. It prints the authorization URL to
// out, waits for the redirect on the local callback server and exchanges
// the code for a token.
func Authenticate(ctx context.Context, cfg *oauth2.Config, out io.Writer) (*Result, error) {
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}
	cb := newCallback(state)

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", CallbackPort))
	if err != nil {
		return nil, fmt.Errorf("starting callback server: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/callback", cb)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			cb.fail(fmt.Errorf("callback server: %w", err))
		}
	}()
	defer shutdown(server)

	fmt.Fprintf(out, "\nOpen this URL to connect Strava:\n\n  %s\n\nWaiting for authorization...\n",
		cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	ctx, cancel := context.WithTimeout(ctx, LoginTimeout)
	defer cancel()

	var code string
	select {
	case code = <-cb.code:
	case err := <-cb.err:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for authorization: %w", ctx.Err())
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code for token: %w", err)
	}
	return &Result{Token: token, AthleteID: ExtractAthleteID(token)}, nil
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}
