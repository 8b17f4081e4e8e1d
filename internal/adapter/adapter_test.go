package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BD4L/breachwatch/internal/pipeline"
)

const listingHTML = `<!DOCTYPE html><html><body>
<table id="breaches">
  <thead><tr><th>Organization Name</th><th>Reported Date</th><th>Individuals Affected</th><th>Notice</th></tr></thead>
  <tbody>
    <tr>
      <td>Acme Inc</td><td>03/03/2025</td><td>1,234</td>
      <td><a href="/notices/acme.pdf">Notice</a></td>
    </tr>
    <tr>
      <td>Globex Corp</td><td>02/20/2025</td><td></td>
      <td><a href="https://cdn.example.com/globex.pdf">Notice</a></td>
    </tr>
  </tbody>
</table>
</body></html>`

func testAdapterConfig(listingURL string) Config {
	return Config{
		ID:         "ag-test",
		Name:       "Test AG",
		ListingURL: listingURL,
		Mapping: pipeline.ColumnMapping{
			Organization:  []string{"Organization Name"},
			ReportedDate:  []string{"Reported Date"},
			AffectedCount: []string{"Individuals Affected"},
			DocumentURL:   []string{"__document_url"},
		},
	}
}

func TestFetchListing_ParsesTableRows(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer srv.Close()

	a, err := New(testAdapterConfig(srv.URL+"/breaches"), zap.NewNop())
	require.NoError(t, err)

	rows, err := a.FetchListing(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, "Acme Inc", rows[0]["Organization Name"])
	require.Equal(t, "03/03/2025", rows[0]["Reported Date"])
	require.Equal(t, "1,234", rows[0]["Individuals Affected"])
	// Relative links resolve against the listing URL.
	require.Equal(t, srv.URL+"/notices/acme.pdf", rows[0]["__document_url"])
	// Absolute links pass through untouched.
	require.Equal(t, "https://cdn.example.com/globex.pdf", rows[1]["__document_url"])
}

func TestFetchListing_NoTable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>maintenance</p></body></html>"))
	}))
	defer srv.Close()

	a, err := New(testAdapterConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = a.FetchListing(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no table matched")
}

func TestAcceptDocument_Filters(t *testing.T) {
	t.Parallel()

	cfg := testAdapterConfig("http://example.com")
	cfg.DocumentAllow = []string{".pdf"}
	cfg.DocumentDeny = []string{"annual-report"}
	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	require.True(t, a.AcceptDocument("http://x/notice.pdf", "Notice"))
	require.False(t, a.AcceptDocument("http://x/annual-report.pdf", "Annual Report"))
	require.False(t, a.AcceptDocument("http://x/page.html", "Page"))
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, Config{}.Validate())
	require.Error(t, Config{ID: "x"}.Validate())
	require.Error(t, Config{ID: "x", ListingURL: "http://y"}.Validate())
	require.NoError(t, testAdapterConfig("http://y").Validate())
}
