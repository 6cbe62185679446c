package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storefrontPage = `<html><body>
<div class="item"><h3><a href="/pla-red">PLA Red</a></h3><s>1000</s><b>800</b></div>
<div class="item"><h3><a href="/petg-black">PETG Black</a></h3><b>650</b></div>
<div class="item"><h3><a href="/broken">PLA Broken</a></h3><b>n/a</b></div>
</body></html>`

func storefront(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, storefrontPage)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeTestConfig(t *testing.T, pageURL string) string {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DISCOUNT_WATCH_WEBHOOK", "")

	dir := t.TempDir()
	cfg := fmt.Sprintf(`
sources:
  - id: teststore
    kind: standard
    urls:
      - url: %s/catalog
    selectors:
      container: .item
      old_price: s
      new_price: b
      product_name: h3 a
categories:
  - name: PLA
    ordinal: 0
  - name: PETG
    ordinal: 1
store:
  driver: sqlite
  dsn: %s
log:
  level: error
`, pageURL, filepath.Join(dir, "watch.db"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	path := writeTestConfig(t, "https://store.example")

	out, err := execute(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "sources:    1")
	assert.Contains(t, out, "store:      sqlite")
}

func TestValidateCommand_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sources": []}`), 0644))

	_, err := execute(t, "validate", "--config", path)
	assert.Error(t, err)
}

func TestRunThenShow(t *testing.T) {
	srv := storefront(t)
	path := writeTestConfig(t, srv.URL)

	out, err := execute(t, "run", "--config", path, "--verbose=false")
	require.NoError(t, err)
	assert.Contains(t, out, "AGGREGATION RUN")
	assert.Contains(t, out, "teststore")

	// show reads the snapshot persisted by run
	out, err = execute(t, "show", "teststore", "--config", path,
		"--previous=false", "--only-discounts=false", "--by-state=false", "--max-deals=0")
	require.NoError(t, err)
	assert.Contains(t, out, "SOURCE TESTSTORE")
	assert.Contains(t, out, "PLA Red")
	assert.Contains(t, out, "PRESENCE TESTSTORE")
	assert.Contains(t, out, "PETG")
}

func TestShow_NoData(t *testing.T) {
	path := writeTestConfig(t, "https://store.example")

	_, err := execute(t, "show", "teststore", "--config", path, "--previous=false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data yet")
}
