// Package redcap is the REDCap API source: it exports the project data
// dictionary as JSON and reports as CSV over the form-post API.
package redcap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"redcapetl/internal/datasource"
	"redcapetl/internal/datasource/httpds"
	"redcapetl/internal/schema"
	"redcapetl/internal/table"
)

// Config configures a Client.
type Config struct {
	URL                string
	Token              string
	Timeout            time.Duration
	MaxRetries         int
	InsecureSkipVerify bool
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// Client talks to one REDCap project.
type Client struct {
	url   string
	token string
	http  *httpds.Client
	log   *zap.Logger
}

var _ datasource.Source = (*Client)(nil)

// New returns a Client. URL and Token are required.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("redcap: url is required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("redcap: token is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	log := cfg.Logger.With(zap.String("source", "redcap"))
	return &Client{
		url:   cfg.URL,
		token: cfg.Token,
		http: httpds.NewClient(httpds.Config{
			Timeout:            cfg.Timeout,
			MaxRetries:         cfg.MaxRetries,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Transport:          cfg.Transport,
			Logger:             log,
		}),
		log: log,
	}, nil
}

// ExportSchema exports the project metadata (data dictionary).
func (c *Client) ExportSchema(ctx context.Context) ([]schema.FieldDefinition, error) {
	form := c.form("metadata", "json")
	body, err := c.http.PostForm(ctx, c.url, form)
	if err != nil {
		return nil, fmt.Errorf("redcap: export metadata: %w", err)
	}
	if err := apiError(body); err != nil {
		return nil, fmt.Errorf("redcap: export metadata: %w", err)
	}
	fields, err := schema.DecodeFields(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.log.Debug("exported metadata", zap.Int("fields", len(fields)))
	return fields, nil
}

// ExportReport exports one report as CSV. params must include report_id;
// snake_case option names are translated to their API spelling.
func (c *Client) ExportReport(ctx context.Context, params map[string]string) (*table.Table, error) {
	p := datasource.APIParams(params)
	id := p[datasource.ParamReportID]
	if id == "" {
		return nil, errors.New("redcap: report_id is required")
	}
	form := c.form("report", "csv")
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "token" || k == "content" || k == "format" {
			continue
		}
		form.Set(k, p[k])
	}

	body, err := c.http.PostForm(ctx, c.url, form)
	if err != nil {
		var se *httpds.StatusError
		if errors.As(err, &se) && se.Code < 500 && strings.Contains(se.Body, "report_id") {
			return nil, fmt.Errorf("redcap: report %s: %w", id, datasource.ErrNotFound)
		}
		return nil, fmt.Errorf("redcap: export report %s: %w", id, err)
	}
	if err := apiError(body); err != nil {
		return nil, fmt.Errorf("redcap: export report %s: %w", id, err)
	}
	var comma rune
	if d := p["csvDelimiter"]; d != "" && d != "," {
		if d == "tab" {
			comma = '\t'
		} else {
			comma = []rune(d)[0]
		}
	}
	t, err := table.ReadCSV(bytes.NewReader(body), table.CSVOptions{Comma: comma})
	if err != nil {
		return nil, fmt.Errorf("redcap: report %s: %w", id, err)
	}
	c.log.Debug("exported report", zap.String("report_id", id),
		zap.Int("rows", t.Len()), zap.Int("columns", t.Width()))
	return t, nil
}

func (c *Client) form(content, format string) url.Values {
	return url.Values{
		"token":        {c.token},
		"content":      {content},
		"format":       {format},
		"returnFormat": {"json"},
	}
}

// apiError detects the {"error": "..."} payload REDCap can return with a
// success status.
func apiError(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(trimmed, &e) != nil || e.Error == "" {
		return nil
	}
	return errors.New(e.Error)
}
