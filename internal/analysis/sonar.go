// Package analysis talks to the code analysis service and its scanner.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/dbsmedya/refmetrics/internal/config"
	"github.com/dbsmedya/refmetrics/internal/logger"
)

// MetricKeys are the metrics requested for every snapshot.
var MetricKeys = []string{"complexity", "lines", "statements", "comment_lines"}

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 4 << 20

// SonarClient is a minimal SonarQube Web API client.
type SonarClient struct {
	baseURL  *url.URL
	user     string
	password string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *logger.Logger
}

// NewSonarClient creates a client for the server at cfg.HostURL.
func NewSonarClient(cfg config.AnalysisConfig, log *logger.Logger) (*SonarClient, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.HostURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid host url %q: %w", cfg.HostURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid host url %q: scheme and host are required", cfg.HostURL)
	}
	if log == nil {
		log = logger.NewDefault()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &SonarClient{
		baseURL:  base,
		user:     cfg.User,
		password: cfg.Password,
		http:     &http.Client{Timeout: cfg.Timeout()},
		limiter:  rate.NewLimiter(limit, 1),
		logger:   log,
	}, nil
}

type apiError struct {
	Errors []struct {
		Msg string `json:"msg"`
	} `json:"errors"`
}

// httpStatusError is returned for non-2xx responses.
type httpStatusError struct {
	Status  int
	Message string
}

func (e *httpStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("unexpected status %d", e.Status)
}

// do performs a request and returns the status code and body. A non-nil
// error means no usable response was received.
func (c *SonarClient) do(ctx context.Context, method, path string, query url.Values) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter: %w", err)
	}

	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if c.user != "" || c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s response: %w", path, err)
	}

	c.logger.Debugw("Analysis service request", "method", method, "path", path, "status", resp.StatusCode)
	return resp.StatusCode, body, nil
}

// call performs a request and decodes a 2xx JSON body into out.
func (c *SonarClient) call(ctx context.Context, method, path string, query url.Values, out any) error {
	status, body, err := c.do(ctx, method, path, query)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return statusError(status, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func statusError(status int, body []byte) error {
	var ae apiError
	msgs := make([]string, 0)
	if json.Unmarshal(body, &ae) == nil {
		for _, e := range ae.Errors {
			msgs = append(msgs, e.Msg)
		}
	}
	return &httpStatusError{Status: status, Message: strings.Join(msgs, "; ")}
}

// CreateProject registers a project and returns the key assigned by the
// server. When the server omits the key, projectKey is returned.
func (c *SonarClient) CreateProject(ctx context.Context, displayName, projectKey string) (string, error) {
	var resp struct {
		Project struct {
			Key  string `json:"key"`
			Name string `json:"name"`
		} `json:"project"`
	}

	q := url.Values{}
	q.Set("name", displayName)
	q.Set("project", projectKey)
	if err := c.call(ctx, http.MethodPost, "/api/projects/create", q, &resp); err != nil {
		return "", fmt.Errorf("create project %s: %w", projectKey, err)
	}

	if resp.Project.Key == "" {
		return projectKey, nil
	}
	return resp.Project.Key, nil
}

// IssueToken generates a user token named tokenName and returns its secret.
func (c *SonarClient) IssueToken(ctx context.Context, tokenName string) (string, error) {
	var resp struct {
		Login string `json:"login"`
		Name  string `json:"name"`
		Token string `json:"token"`
	}

	q := url.Values{}
	q.Set("name", tokenName)
	if err := c.call(ctx, http.MethodPost, "/api/user_tokens/generate", q, &resp); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("generate token: empty token in response")
	}
	return resp.Token, nil
}

// FetchMetrics returns the latest measures of MetricKeys for the project.
func (c *SonarClient) FetchMetrics(ctx context.Context, serviceProjectID string) FetchResult {
	q := url.Values{}
	q.Set("component", serviceProjectID)
	q.Set("metricKeys", strings.Join(MetricKeys, ","))

	status, body, err := c.do(ctx, http.MethodGet, "/api/measures/component", q)
	if err != nil {
		return TransportError(err)
	}
	if status == http.StatusNotFound {
		return NotFound()
	}
	if status < 200 || status >= 300 {
		return TransportError(statusError(status, body))
	}

	var resp struct {
		Component *struct {
			Key      string    `json:"key"`
			Measures []Measure `json:"measures"`
		} `json:"component"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return TransportError(fmt.Errorf("decode measures: %w", err))
	}
	if resp.Component == nil || len(resp.Component.Measures) == 0 {
		return NotFound()
	}

	return Found(NewSnapshot(resp.Component.Measures))
}

// ListMetrics returns the keys of every metric known to the server.
func (c *SonarClient) ListMetrics(ctx context.Context) ([]string, error) {
	const pageSize = 500

	var keys []string
	for page := 1; ; page++ {
		var resp struct {
			Metrics []struct {
				Key string `json:"key"`
			} `json:"metrics"`
			Total int `json:"total"`
		}

		q := url.Values{}
		q.Set("p", fmt.Sprint(page))
		q.Set("ps", fmt.Sprint(pageSize))
		if err := c.call(ctx, http.MethodGet, "/api/metrics/search", q, &resp); err != nil {
			return nil, fmt.Errorf("list metrics: %w", err)
		}

		for _, m := range resp.Metrics {
			keys = append(keys, m.Key)
		}
		if len(resp.Metrics) == 0 || len(keys) >= resp.Total {
			break
		}
	}
	return keys, nil
}
