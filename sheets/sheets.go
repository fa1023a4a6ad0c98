// Package sheets reads the catalog from a published spreadsheet through its
// CSV export. Every sheet (tab) is addressed by name; the version marker is
// a single cell of a dedicated sheet.
package sheets

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/vitrine/catalog"
	"github.com/hazyhaar/vitrine/horosafe"
)

// SheetPlaceholder is replaced by the query-escaped sheet name in
// Config.URLTemplate.
const SheetPlaceholder = "{sheet}"

// ErrVersionCellMissing is returned when the version sheet is smaller than
// the configured cell position.
var ErrVersionCellMissing = errors.New("sheets: version cell missing")

// Config configures a Client.
type Config struct {
	// URLTemplate is the CSV export URL with a {sheet} placeholder, e.g.
	// https://docs.google.com/spreadsheets/d/<id>/gviz/tq?tqx=out:csv&sheet={sheet}
	URLTemplate string
	// VersionRow and VersionCol locate the version token (zero-based).
	VersionRow int
	VersionCol int
	Timeout    time.Duration // Default: 30s.
	MaxBytes   int64         // Default: 10MB.
	UserAgent  string
	// URLValidator runs before every request. Default: horosafe.ValidateURL.
	URLValidator func(string) error
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = "vitrine/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = horosafe.ValidateURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client implements catalog.RemoteSource.
type Client struct {
	http   *http.Client
	config Config
}

var _ catalog.RemoteSource = (*Client)(nil)

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if !strings.Contains(cfg.URLTemplate, SheetPlaceholder) {
		return nil, fmt.Errorf("sheets: URL template must contain %s", SheetPlaceholder)
	}
	if cfg.VersionRow < 0 || cfg.VersionCol < 0 {
		return nil, fmt.Errorf("sheets: negative version cell position")
	}
	cfg.defaults()
	return &Client{http: &http.Client{Timeout: cfg.Timeout}, config: cfg}, nil
}

// SheetURL returns the export URL of sheet.
func (c *Client) SheetURL(sheet string) string {
	return strings.ReplaceAll(c.config.URLTemplate, SheetPlaceholder, url.QueryEscape(sheet))
}

// FetchTabularRows downloads sheet and parses it as CSV. Ragged rows are
// accepted.
func (c *Client) FetchTabularRows(ctx context.Context, sheet string) ([][]string, error) {
	body, err := c.get(ctx, c.SheetURL(sheet))
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("sheets: parse %s: %w", sheet, err)
	}
	c.config.Logger.Debug("sheets: fetched", "sheet", sheet, "rows", len(rows))
	return rows, nil
}

// FetchRemoteVersion reads the version cell of sheet.
func (c *Client) FetchRemoteVersion(ctx context.Context, sheet string) (string, error) {
	rows, err := c.FetchTabularRows(ctx, sheet)
	if err != nil {
		return "", err
	}
	row, col := c.config.VersionRow, c.config.VersionCol
	if row >= len(rows) || col >= len(rows[row]) {
		return "", fmt.Errorf("%w: %s has no cell at row %d col %d", ErrVersionCellMissing, sheet, row, col)
	}
	return strings.TrimSpace(rows[row][col]), nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	if err := c.config.URLValidator(u); err != nil {
		return nil, fmt.Errorf("sheets: URL blocked: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("sheets: new request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "text/csv")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheets: http get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sheets: http %d", resp.StatusCode)
	}
	body, err := horosafe.LimitedReadAll(resp.Body, c.config.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("sheets: read body: %w", err)
	}
	return body, nil
}
