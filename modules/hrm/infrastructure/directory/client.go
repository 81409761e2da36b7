// Package directory talks to the remote HR API: the scope directory reads
// that feed the organizational dropdowns, the edit-mode bootstrap read and
// employee writes.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/competency-hub/modules/hrm/domain/aggregates/employee"
	"github.com/iota-uz/competency-hub/modules/hrm/domain/orglevel"
)

var tracer = otel.Tracer("competency-hub/hrm/directory")

// APIError is the JSON error envelope returned by the remote API.
type APIError struct {
	Status  int               `json:"-"`
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s: %s", e.Status, e.Code, e.Message)
}

type ClientOptions struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	RequestIDHeader string
	HTTPClient      *http.Client
}

type Client struct {
	baseURL         *url.URL
	token           string
	httpClient      *http.Client
	requestIDHeader string
}

func NewClient(opts ClientOptions) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("directory: invalid base url %q", raw)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:         u,
		token:           strings.TrimSpace(opts.Token),
		httpClient:      httpClient,
		requestIDHeader: opts.RequestIDHeader,
	}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody any, out any) error {
	ctx, span := tracer.Start(ctx, "directory "+method+" "+path, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	))
	defer span.End()

	err := c.roundTrip(ctx, method, path, reqBody, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, reqBody any, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return errors.Wrap(err, "json marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "http request")
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.requestIDHeader != "" {
		req.Header.Set(c.requestIDHeader, uuid.NewString())
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "http do")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "http read")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || strings.TrimSpace(apiErr.Code) == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrap(err, "json unmarshal response")
	}
	return nil
}

func (c *Client) listOptions(ctx context.Context, level orglevel.Level, path string) ([]orglevel.OptionRecord, error) {
	var raw []orglevel.RawRecord
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, errors.Wrapf(err, "list %s options", level.Key())
	}
	return orglevel.NormalizeOptions(level, raw)
}

func (c *Client) Segments(ctx context.Context) ([]orglevel.OptionRecord, error) {
	return c.listOptions(ctx, orglevel.Segment, "/api/org/segments")
}

func (c *Client) SubSegments(ctx context.Context, segmentID int64) ([]orglevel.OptionRecord, error) {
	return c.listOptions(ctx, orglevel.SubSegment, "/api/org/segments/"+itoa(segmentID)+"/sub-segments")
}

func (c *Client) Projects(ctx context.Context, subSegmentID int64) ([]orglevel.OptionRecord, error) {
	return c.listOptions(ctx, orglevel.Project, "/api/org/sub-segments/"+itoa(subSegmentID)+"/projects")
}

func (c *Client) Teams(ctx context.Context, projectID int64) ([]orglevel.OptionRecord, error) {
	return c.listOptions(ctx, orglevel.Team, "/api/org/projects/"+itoa(projectID)+"/teams")
}

// Bootstrap returns every level's options plus the employee's selections.
func (c *Client) Bootstrap(ctx context.Context, employeeID int64) (orglevel.BootstrapPayload, error) {
	var out orglevel.BootstrapPayload
	if err := c.doJSON(ctx, http.MethodGet, "/api/employees/"+itoa(employeeID)+"/assignment-bootstrap", nil, &out); err != nil {
		return out, errors.Wrap(err, "employee bootstrap")
	}
	return out, nil
}

func (c *Client) Employee(ctx context.Context, id int64) (employee.Record, error) {
	var out employee.Record
	if err := c.doJSON(ctx, http.MethodGet, "/api/employees/"+itoa(id), nil, &out); err != nil {
		return out, errors.Wrap(err, "get employee")
	}
	return out, nil
}

func (c *Client) CreateEmployee(ctx context.Context, in employee.Input) (employee.Record, error) {
	var out employee.Record
	if err := c.doJSON(ctx, http.MethodPost, "/api/employees", in, &out); err != nil {
		return out, errors.Wrap(err, "create employee")
	}
	return out, nil
}

func (c *Client) UpdateEmployee(ctx context.Context, id int64, in employee.Input) (employee.Record, error) {
	var out employee.Record
	if err := c.doJSON(ctx, http.MethodPut, "/api/employees/"+itoa(id), in, &out); err != nil {
		return out, errors.Wrap(err, "update employee")
	}
	return out, nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
