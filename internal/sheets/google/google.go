package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ledger/internal/cache"
	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

// Columns written for each transaction. Column A holds the transaction id
// and is the row key.
var header = []any{"ID", "Date", "Type", "Description", "Category", "Amount", "Account", "Card", "To account"}

const lastColumn = "I"

// Rows are cleared, never deleted, so a live transaction keeps its row.
// The index only saves the column A read on repeated upserts.
const (
	rowIndexSize = 4096
	rowIndexTTL  = 10 * time.Minute
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	rows          *cache.LRU[int64, int]
}

var _ ports.TransactionMirror = (*Client)(nil)

// Config selects the spreadsheet and the service-account credentials.
// CredentialsJSON wins over CredentialsFile.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// New creates a Sheets mirror authenticated with a service account. Extra
// options are appended after the credentials.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}

	base := []goption.ClientOption{
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()),
	}
	svc, err := gsheet.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets mirror ready", "spreadsheet_id", cfg.SpreadsheetID, "sheet", sheetName(cfg))
	return NewWithService(svc, cfg.SpreadsheetID, sheetName(cfg)), nil
}

// NewWithService wraps an existing service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheet string) *Client {
	if sheet == "" {
		sheet = "Transactions"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		rows:          cache.New[int64, int](rowIndexSize, rowIndexTTL),
	}
}

func sheetName(cfg Config) string {
	if s := strings.TrimSpace(cfg.SheetName); s != "" {
		return s
	}
	return "Transactions"
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// newHTTPClientWithPooling returns an HTTP client tuned for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// Upsert writes t to the row keyed by its id, appending a row when the id
// is not in the sheet yet. An empty sheet gets a header row first.
func (c *Client) Upsert(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	if row, ok := c.rows.Get(t.ID); ok {
		if err := c.writeRow(ctx, row, rowValues(t)); err != nil {
			c.rows.Delete(t.ID)
			return fmt.Errorf("write transaction %d: %w", t.ID, err)
		}
		return nil
	}

	ids, err := c.readIDs(ctx)
	if err != nil {
		return err
	}

	row := findRow(ids, t.ID)
	if row == 0 {
		if len(ids) == 0 {
			if err := c.writeRow(ctx, 1, header); err != nil {
				return fmt.Errorf("write header: %w", err)
			}
			ids = append(ids, "ID")
		}
		row = len(ids) + 1
	}

	if err := c.writeRow(ctx, row, rowValues(t)); err != nil {
		return fmt.Errorf("write transaction %d: %w", t.ID, err)
	}
	c.rows.Set(t.ID, row)
	return nil
}

// Remove clears the row keyed by id. A missing row is not an error.
// The row is always looked up in the sheet since a cleared trailing row can
// be reused by a later append.
func (c *Client) Remove(ctx context.Context, id int64) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	c.rows.Delete(id)

	ids, err := c.readIDs(ctx)
	if err != nil {
		return err
	}
	row := findRow(ids, id)
	if row == 0 {
		return nil
	}

	rng := fmt.Sprintf("%s!A%d:%s%d", c.sheet, row, lastColumn, row)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

func (c *Client) readIDs(ctx context.Context) ([]string, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	ids := make([]string, len(resp.Values))
	for i, r := range resp.Values {
		if len(r) > 0 {
			ids[i] = strings.TrimSpace(fmt.Sprint(r[0]))
		}
	}
	return ids, nil
}

func (c *Client) writeRow(ctx context.Context, row int, values []any) error {
	rng := fmt.Sprintf("%s!A%d:%s%d", c.sheet, row, lastColumn, row)
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// findRow returns the 1-based row holding id, or 0.
func findRow(ids []string, id int64) int {
	want := strconv.FormatInt(id, 10)
	for i, v := range ids {
		if v == want {
			return i + 1
		}
	}
	return 0
}

func rowValues(t core.Transaction) []any {
	return []any{
		strconv.FormatInt(t.ID, 10),
		t.Date.String(),
		string(t.Type),
		t.Description,
		t.Category,
		core.FormatAmount(t.Amount),
		optionalID(t.AccountID),
		optionalID(t.CreditCardID),
		optionalID(t.ToAccountID),
	}
}

func optionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
