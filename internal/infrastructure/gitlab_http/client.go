package gitlab_http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/davarch/pipeline-monitor/internal/domain"
	"go.uber.org/zap"
)

const (
	pipelinesPerPage = 100
	// Gitlab is only ever asked for pages 1 and 2. Walking the full
	// pagination would change rate-limit and latency behaviour.
	pipelinePages = 2

	defaultRetryDelay = time.Second
	maxRetries        = 5
)

type Client struct {
	log  *zap.Logger
	hc   *http.Client
	caps *capabilityCache

	// retryDelay is the fixed delay between pipeline fetch attempts.
	// Tests shrink it.
	retryDelay time.Duration
}

func New(log *zap.Logger, timeout time.Duration) *Client {
	tr := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
		TLSHandshakeTimeout: timeout,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		log:        log,
		hc:         &http.Client{Transport: tr, Timeout: timeout},
		caps:       newCapabilityCache(),
		retryDelay: defaultRetryDelay,
	}
}

type pipelineDTO struct {
	ID        int64      `json:"id"`
	Ref       string     `json:"ref"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
	WebURL    string     `json:"web_url"`
	Source    string     `json:"source"`
}

// FetchPipelines loads pages 1 and 2 of the pipelines endpoint for the
// mapping. Both IO and login failures are retried with a fixed delay up to
// maxRetries times before the terminal failure is surfaced.
func (c *Client) FetchPipelines(ctx context.Context, m domain.Mapping, token string) ([]domain.PipelineStatus, error) {
	var out []domain.PipelineStatus

	op := func() error {
		out = out[:0]
		for page := 1; page <= pipelinePages; page++ {
			listURL := fmt.Sprintf("%s/api/v4/projects/%s/pipelines?page=%d&per_page=%d",
				strings.TrimRight(m.Host, "/"), url.PathEscape(m.ProjectID), page, pipelinesPerPage)

			body, err := c.Call(ctx, listURL, token)
			if err != nil {
				return err
			}

			var list []pipelineDTO
			if err := json.Unmarshal(body, &list); err != nil {
				return backoff.Permanent(domain.NewFailure(domain.FailureParse, redact(listURL, token), err))
			}

			for _, p := range list {
				out = append(out, toStatus(p, m.ProjectID))
			}
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), maxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return out, nil
}

// Call performs an authenticated GET. The token is passed as the
// private_token query parameter and never appears in logs or errors.
func (c *Client) Call(ctx context.Context, rawURL, token string) ([]byte, error) {
	cleaned := redact(rawURL, token)

	reqURL := rawURL
	if token != "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, domain.NewFailure(domain.FailureIO, cleaned, err)
		}
		q := u.Query()
		q.Set("private_token", token)
		u.RawQuery = q.Encode()
		reqURL = u.String()
	}

	c.log.Debug("calling gitlab", zap.String("url", cleaned))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, domain.NewFailure(domain.FailureIO, cleaned, err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, domain.NewFailure(domain.FailureIO, cleaned, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewFailure(domain.FailureIO, cleaned, err)
	}

	if err := classifyStatus(resp.StatusCode, cleaned); err != nil {
		return nil, err
	}
	return body, nil
}

// Probe issues a plain unauthenticated GET and returns the body as text.
// Used by the remote resolver's host guessing.
func (c *Client) Probe(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", domain.NewFailure(domain.FailureIO, rawURL, err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", domain.NewFailure(domain.FailureIO, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewFailure(domain.FailureIO, rawURL, err)
	}
	return string(body), nil
}

// classifyStatus maps an HTTP status to the failure taxonomy. Gitlab
// returns 404 for both "not found" and "forbidden", so 404 is treated like
// 401.
func classifyStatus(status int, cleanedURL string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusNotFound:
		return domain.NewFailure(domain.FailureLogin, cleanedURL, fmt.Errorf("status %d", status))
	case status >= 300:
		return domain.NewFailure(domain.FailureIO, cleanedURL, fmt.Errorf("status %d", status))
	default:
		return nil
	}
}

func toStatus(p pipelineDTO, projectID string) domain.PipelineStatus {
	s := domain.PipelineStatus{
		ID:         p.ID,
		BranchName: p.Ref,
		ProjectID:  projectID,
		Status:     p.Status,
		WebURL:     p.WebURL,
		Source:     p.Source,
	}
	if p.CreatedAt != nil {
		s.CreatedAt = *p.CreatedAt
	}
	if p.UpdatedAt != nil {
		s.UpdatedAt = *p.UpdatedAt
	}
	return s
}

func redact(rawURL, token string) string {
	if token == "" {
		return rawURL
	}
	return strings.ReplaceAll(rawURL, token, "<accessToken>")
}
