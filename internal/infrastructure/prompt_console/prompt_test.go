package prompt_console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/davarch/pipeline-monitor/internal/domain"
	"go.uber.org/zap"
)

func request(remote, oldToken string) domain.AuthRequest {
	return domain.AuthRequest{
		Mapping:  domain.Mapping{Remote: remote},
		OldToken: oldToken,
		Kind:     domain.TokenPersonal,
		Reply:    make(chan domain.AuthResponse, 1),
	}
}

func serve(t *testing.T, input string) (chan<- domain.AuthRequest, *bytes.Buffer, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	out := &bytes.Buffer{}
	requests := make(chan domain.AuthRequest)

	p := New(zap.NewNop(), strings.NewReader(input), out)
	go p.Serve(ctx, requests)

	return requests, out, cancel
}

func await(t *testing.T, req domain.AuthRequest) domain.AuthResponse {
	t.Helper()
	select {
	case resp := <-req.Reply:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("no reply from prompter")
		return domain.AuthResponse{}
	}
}

func TestServe_SubmitsEnteredToken(t *testing.T) {
	requests, _, cancel := serve(t, "shiny-new-token\n")
	defer cancel()

	req := request("git@gitlab.example.com:group/proj.git", "old")
	requests <- req

	resp := await(t, req)
	if !resp.Submitted {
		t.Fatal("expected a submitted response")
	}
	if resp.Token != "shiny-new-token" {
		t.Errorf("wrong token: %q", resp.Token)
	}
	if resp.Kind != domain.TokenPersonal {
		t.Errorf("kind must be carried over, got %q", resp.Kind)
	}
}

func TestServe_EmptyLineSubmitsDeletion(t *testing.T) {
	requests, _, cancel := serve(t, "\n")
	defer cancel()

	req := request("remote", "old")
	requests <- req

	resp := await(t, req)
	if !resp.Submitted {
		t.Fatal("an empty line is a deliberate deletion, not a decline")
	}
	if resp.Token != "" {
		t.Errorf("expected empty token, got %q", resp.Token)
	}
}

func TestServe_EOFDeclines(t *testing.T) {
	requests, out, cancel := serve(t, "")
	defer cancel()

	req := request("remote", "")
	requests <- req

	resp := await(t, req)
	if resp.Submitted {
		t.Fatal("EOF must decline the prompt")
	}
	if !strings.Contains(out.String(), "remote") {
		t.Errorf("prompt must name the remote, got %q", out.String())
	}
}
