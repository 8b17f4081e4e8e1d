// Package adapter implements a declarative source adapter for tabular
// listing pages. All site specifics live in configuration: the listing URL,
// CSS selectors, column mapping, and document link filters.
package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/BD4L/breachwatch/internal/pipeline"
)

// Config declares one source. Selectors default to plain HTML tables.
type Config struct {
	ID         string `mapstructure:"id"`
	Name       string `mapstructure:"name"`
	ListingURL string `mapstructure:"listing_url"`

	TableSelector  string `mapstructure:"table_selector"`
	RowSelector    string `mapstructure:"row_selector"`
	HeaderSelector string `mapstructure:"header_selector"`

	Mapping pipeline.ColumnMapping `mapstructure:"mapping"`

	// DocumentAllow/DocumentDeny filter companion-document links by URL
	// substring. Deny wins; an empty allow list accepts everything not
	// denied.
	DocumentAllow []string `mapstructure:"document_allow"`
	DocumentDeny  []string `mapstructure:"document_deny"`

	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func (c *Config) defaults() {
	if c.TableSelector == "" {
		c.TableSelector = "table"
	}
	if c.RowSelector == "" {
		c.RowSelector = "tbody tr"
	}
	if c.HeaderSelector == "" {
		c.HeaderSelector = "thead th"
	}
	if c.UserAgent == "" {
		c.UserAgent = "breachwatch/0.1"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks the required declaration fields.
func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("source id is required")
	}
	if c.ListingURL == "" {
		return fmt.Errorf("source %s: listing_url is required", c.ID)
	}
	if len(c.Mapping.Organization) == 0 {
		return fmt.Errorf("source %s: mapping.organization is required", c.ID)
	}
	return nil
}

// TableAdapter implements pipeline.SourceAdapter for an HTML table listing.
type TableAdapter struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

// New builds a TableAdapter.
func New(cfg Config, logger *zap.Logger) (*TableAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.UserAgent(cfg.UserAgent))
	c.SetRequestTimeout(cfg.Timeout)
	return &TableAdapter{cfg: cfg, base: c, logger: logger}, nil
}

// SourceID implements pipeline.SourceAdapter.
func (a *TableAdapter) SourceID() string { return a.cfg.ID }

// Name implements pipeline.SourceAdapter.
func (a *TableAdapter) Name() string {
	if a.cfg.Name != "" {
		return a.cfg.Name
	}
	return a.cfg.ID
}

// Mapping implements pipeline.SourceAdapter.
func (a *TableAdapter) Mapping() pipeline.ColumnMapping { return a.cfg.Mapping }

// AcceptDocument applies the configured allow/deny substring filters.
func (a *TableAdapter) AcceptDocument(href, linkText string) bool {
	probe := strings.ToLower(href + " " + linkText)
	for _, deny := range a.cfg.DocumentDeny {
		if deny != "" && strings.Contains(probe, strings.ToLower(deny)) {
			return false
		}
	}
	if len(a.cfg.DocumentAllow) == 0 {
		return true
	}
	for _, allow := range a.cfg.DocumentAllow {
		if allow != "" && strings.Contains(probe, strings.ToLower(allow)) {
			return true
		}
	}
	return false
}

// FetchListing retrieves the listing page and parses the configured table
// into raw rows keyed by column header. Each row also carries the first
// link found in the row under the synthetic "__document_url" key, resolved
// against the listing URL.
func (a *TableAdapter) FetchListing(ctx context.Context) ([]pipeline.RawRow, error) {
	var (
		rows     []pipeline.RawRow
		fetchErr error
	)

	c := a.base.Clone()
	c.OnHTML(a.cfg.TableSelector, func(e *colly.HTMLElement) {
		if rows != nil {
			// Only the first matching table is the listing.
			return
		}
		rows = a.parseTable(e.DOM)
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Visit(a.cfg.ListingURL); err != nil && fetchErr == nil {
			fetchErr = err
		}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}

	if fetchErr != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", a.cfg.ListingURL, fetchErr)
	}
	if rows == nil {
		return nil, fmt.Errorf("no table matched selector %q at %s", a.cfg.TableSelector, a.cfg.ListingURL)
	}
	a.logger.Debug("listing parsed",
		zap.String("source_id", a.cfg.ID),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

func (a *TableAdapter) parseTable(table *goquery.Selection) []pipeline.RawRow {
	var headers []string
	table.Find(a.cfg.HeaderSelector).Each(func(_ int, th *goquery.Selection) {
		headers = append(headers, strings.TrimSpace(th.Text()))
	})

	var rows []pipeline.RawRow
	table.Find(a.cfg.RowSelector).Each(func(_ int, tr *goquery.Selection) {
		row := pipeline.RawRow{}
		tr.Find("td").Each(func(i int, td *goquery.Selection) {
			key := fmt.Sprintf("col_%d", i)
			if i < len(headers) && headers[i] != "" {
				key = headers[i]
			}
			row[key] = strings.TrimSpace(td.Text())
		})
		if len(row) == 0 {
			return
		}
		if href, ok := tr.Find("a[href]").First().Attr("href"); ok {
			if abs := a.resolveURL(href); abs != "" {
				row["__document_url"] = abs
			}
		}
		rows = append(rows, row)
	})
	return rows
}

func (a *TableAdapter) resolveURL(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	base, err := url.Parse(a.cfg.ListingURL)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
