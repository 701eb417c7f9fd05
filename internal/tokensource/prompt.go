package tokensource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/florianilch/tradestation-auth/internal/auth"
)

// Prompter presents the authorization URL to the user and returns the full
// URL the browser was redirected to afterwards.
type Prompter interface {
	Callback(ctx context.Context, authURL string) (string, error)
}

// OpenFunc opens a URL for the user, typically in a browser.
type OpenFunc func(url string) error

// StdinPrompter prints the authorization URL and reads the redirect URL as a
// single line. There is no retry: whatever is entered is handed to ParseCallback.
type StdinPrompter struct {
	// In defaults to os.Stdin. On a terminal the input is not echoed since
	// the redirect URL carries the authorization code.
	In io.Reader
	// Out defaults to os.Stderr.
	Out io.Writer
	// Open is optional. Failures are logged and the flow continues.
	Open OpenFunc
}

// Compile-time check to ensure StdinPrompter implements Prompter
var _ Prompter = (*StdinPrompter)(nil)

// Callback implements Prompter. It returns ctx.Err() if ctx ends before a line is read.
func (p *StdinPrompter) Callback(ctx context.Context, authURL string) (string, error) {
	in := p.In
	if in == nil {
		in = os.Stdin
	}
	out := p.Out
	if out == nil {
		out = os.Stderr
	}

	_, _ = fmt.Fprintln(out, "Please go to this URL to authorize the application. After logging in, "+
		`the page may say "Unable to connect." Copy the URL of that page regardless.`)
	_, _ = fmt.Fprintln(out, authURL)

	if p.Open != nil {
		if err := p.Open(authURL); err != nil {
			slog.WarnContext(ctx, "failed to open browser", "error", err)
		}
	}

	_, _ = fmt.Fprint(out, "Please enter the full redirect URL you were returned to: ")

	type result struct {
		line string
		err  error
	}
	// Reads cannot be interrupted; on cancellation the goroutine ends with the input.
	resultCh := make(chan result, 1)
	go func() {
		line, err := readLine(in, out)
		resultCh <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		_, _ = fmt.Fprintln(out)
		return "", ctx.Err()
	case r := <-resultCh:
		return r.line, r.err
	}
}

func readLine(in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		line, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("reading redirect URL: %w", err)
		}
		return strings.TrimSpace(string(line)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if errors.Is(err, io.EOF) {
		if strings.TrimSpace(line) == "" {
			return "", &auth.Error{Kind: auth.KindUserCancelled, Detail: "no redirect URL entered", Err: err}
		}
		err = nil
	}
	if err != nil {
		return "", fmt.Errorf("reading redirect URL: %w", err)
	}
	return strings.TrimSpace(line), nil
}
