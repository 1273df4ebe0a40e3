package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ledger/internal/core"
)

// fakeSheet serves the subset of the Sheets values API the mirror uses.
type fakeSheet struct {
	mu    sync.Mutex
	rows  map[int][]string
	reads int
}

var rowRange = regexp.MustCompile(`![A-Z]+(\d+):[A-Z]+\d+$`)

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const prefix = "/v4/spreadsheets/sheet-id/values/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	rng := strings.TrimPrefix(r.URL.Path, prefix)

	switch {
	case r.Method == http.MethodGet:
		f.reads++
		last := 0
		for n := range f.rows {
			if n > last {
				last = n
			}
		}
		values := make([][]any, last)
		for i := 1; i <= last; i++ {
			values[i-1] = []any{}
			if cells := f.rows[i]; len(cells) > 0 {
				values[i-1] = []any{cells[0]}
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": values})

	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		row := rangeRow(rng)
		cells := make([]string, 0, len(vr.Values[0]))
		for _, v := range vr.Values[0] {
			cells = append(cells, v.(string))
		}
		f.rows[row] = cells
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRange": rng})

	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":clear"):
		delete(f.rows, rangeRow(strings.TrimSuffix(rng, ":clear")))
		_ = json.NewEncoder(w).Encode(map[string]any{"clearedRange": rng})

	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func rangeRow(rng string) int {
	m := rowRange.FindStringSubmatch(rng)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func newTestClient(t *testing.T) (*Client, *fakeSheet) {
	t.Helper()
	fake := &fakeSheet{rows: map[int][]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return NewWithService(svc, "sheet-id", "Transactions"), fake
}

func transaction(id int64, desc string) core.Transaction {
	return core.Transaction{
		ID:          id,
		Description: desc,
		Amount:      decimal.RequireFromString("42.5"),
		Type:        core.Transfer,
		Date:        core.NewDate(2024, 2, 29),
		Category:    core.TransferCategory,
		OwnerID:     1,
		AccountID:   core.ID(3),
		ToAccountID: core.ID(4),
	}
}

func TestUpsertWritesHeaderThenRows(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClient(t)

	require.NoError(t, c.Upsert(ctx, transaction(7, "savings")))
	require.NoError(t, c.Upsert(ctx, transaction(8, "rent")))

	assert.Equal(t, "ID", fake.rows[1][0])
	assert.Equal(t, []string{"7", "2024-02-29", "transfer", "savings", "Transfer", "42.50", "3", "", "4"}, fake.rows[2])
	assert.Equal(t, "8", fake.rows[3][0])
}

func TestUpsertReplacesExistingRow(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClient(t)

	require.NoError(t, c.Upsert(ctx, transaction(7, "savings")))
	require.NoError(t, c.Upsert(ctx, transaction(8, "rent")))
	require.NoError(t, c.Upsert(ctx, transaction(7, "holiday fund")))

	assert.Len(t, fake.rows, 3)
	assert.Equal(t, "holiday fund", fake.rows[2][3])
}

func TestUpsertReusesKnownRow(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClient(t)

	require.NoError(t, c.Upsert(ctx, transaction(7, "savings")))
	require.NoError(t, c.Upsert(ctx, transaction(7, "holiday fund")))
	require.NoError(t, c.Upsert(ctx, transaction(7, "car")))
	assert.Equal(t, 1, fake.reads, "later upserts write the cached row")
	assert.Equal(t, "car", fake.rows[2][3])

	require.NoError(t, c.Remove(ctx, 7))
	require.NoError(t, c.Upsert(ctx, transaction(8, "rent")))
	assert.Equal(t, 3, fake.reads)
	assert.Equal(t, "8", fake.rows[2][0], "the cleared trailing row is reused")
}

func TestRemoveClearsRow(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClient(t)

	require.NoError(t, c.Upsert(ctx, transaction(7, "savings")))
	require.NoError(t, c.Remove(ctx, 7))
	_, ok := fake.rows[2]
	assert.False(t, ok)

	require.NoError(t, c.Remove(ctx, 99), "removing an unknown id is a no-op")
}

func TestUpsertValidatesFirst(t *testing.T) {
	c := &Client{spreadsheetID: "sheet-id", sheet: "Transactions"}
	bad := transaction(1, "")
	err := c.Upsert(context.Background(), bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmptyDescription)
}

func TestNewRequiresSpreadsheetAndCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.EqualError(t, err, "missing spreadsheet id")

	_, err = New(context.Background(), Config{SpreadsheetID: "x"})
	require.ErrorContains(t, err, "missing service account credentials")

	_, err = New(context.Background(), Config{SpreadsheetID: "x", CredentialsFile: filepath.Join(t.TempDir(), "nope.json")})
	require.ErrorContains(t, err, "read service account file")
}

func TestCredentialsPreferInlineJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"from":"file"}`), 0o600))

	b, err := credentials(Config{CredentialsJSON: `{"from":"env"}`, CredentialsFile: path})
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"env"}`, string(b))

	b, err = credentials(Config{CredentialsFile: path})
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"file"}`, string(b))
}

func TestFindRow(t *testing.T) {
	ids := []string{"ID", "3", "", "10"}
	assert.Equal(t, 2, findRow(ids, 3))
	assert.Equal(t, 4, findRow(ids, 10))
	assert.Equal(t, 0, findRow(ids, 1))
}
