package prompt_console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/davarch/pipeline-monitor/internal/domain"
	"go.uber.org/zap"
)

// Prompter answers auth requests on the terminal. It is the CLI stand-in
// for the token dialog an IDE would show.
type Prompter struct {
	log *zap.Logger
	in  *bufio.Reader
	out io.Writer
}

func New(log *zap.Logger, in io.Reader, out io.Writer) *Prompter {
	return &Prompter{log: log, in: bufio.NewReader(in), out: out}
}

// Serve consumes auth requests until the channel closes or ctx is done.
// Requests are answered one at a time; EOF on stdin declines the request.
func (p *Prompter) Serve(ctx context.Context, requests <-chan domain.AuthRequest) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			p.answer(ctx, req)
		}
	}
}

func (p *Prompter) answer(ctx context.Context, req domain.AuthRequest) {
	old := "<empty>"
	if req.OldToken != "" {
		old = fmt.Sprintf("<%d characters>", len(req.OldToken))
	}

	fmt.Fprintf(p.out, "Unable to log in to gitlab for %s.\n", req.Mapping.Remote)
	fmt.Fprintf(p.out, "Current %s token: %s\n", req.Kind, old)
	fmt.Fprint(p.out, "Enter a new access token (empty deletes the stored one, Ctrl-D skips): ")

	line, err := p.in.ReadString('\n')
	if err != nil {
		p.log.Info("token prompt declined", zap.String("remote", req.Mapping.Remote))
		p.reply(ctx, req, domain.AuthResponse{Submitted: false})
		return
	}

	token := strings.TrimSpace(line)
	p.reply(ctx, req, domain.AuthResponse{Token: token, Kind: req.Kind, Submitted: true})
}

func (p *Prompter) reply(ctx context.Context, req domain.AuthRequest, resp domain.AuthResponse) {
	select {
	case req.Reply <- resp:
	case <-ctx.Done():
	}
}
