package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-smshook/adapters/gologger"
	"github.com/goliatone/go-smshook/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const partialPayload = `{"msisdn":"447700900419","to":"447700900996","messageId":"0B000000D0EBB58C",` +
	`"text":"Hello","type":"text","message-timestamp":"2018-04-24 14:05:19","timestamp":"1524578719",` +
	`"concat":"true","concat-ref":"78","concat-total":"3","concat-part":"1"}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smshook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func sqliteConfig(t *testing.T) string {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?cache=shared&_foreign_keys=on", filepath.Join(t.TempDir(), "smshook.db"))
	return writeConfig(t, `
log_level: error
signature:
  disabled: true
reassembly:
  stale_after: 1h
database:
  driver: sqlite3
  dsn: "`+dsn+`"
`)
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), out.String())
	return out.String()
}

func TestLoadConfig_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
signature:
  secret: from-file
  method: sha256
http:
  path: /hooks/nexmo
reassembly:
  stale_after: 6h
`)
	t.Setenv("SMSHOOK_SIGNATURE_SECRET", "from-env")

	cfg, provider, err := loadConfig(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, provider)

	assert.Equal(t, "from-env", cfg.Signature.Secret)
	assert.Equal(t, core.SignatureMethodSHA256, cfg.Signature.Method)
	assert.Equal(t, "/hooks/nexmo", cfg.HTTP.Path)
	assert.Equal(t, 6*time.Hour, cfg.Reassembly.StaleAfterDuration())
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, core.DriverSQLite, cfg.Database.Driver)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, _, err := loadConfig(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestOpenDatabase_RejectsUnknownDriver(t *testing.T) {
	_, err := openDatabase(core.DatabaseConfig{Driver: "mysql", DSN: "root@/smshook"})
	require.Error(t, err)

	_, err = openDatabase(core.DatabaseConfig{Driver: core.DriverSQLite})
	require.Error(t, err)
}

func TestCLI_MigratePendingPurge(t *testing.T) {
	path := sqliteConfig(t)

	out := runCLI(t, "migrate", "--config", path)
	assert.Contains(t, out, "Migrations applied (sqlite3)")

	out = runCLI(t, "pending", "--config", path)
	assert.Contains(t, out, "No pending groups.")

	a, err := newApp(context.Background(), path, &bytes.Buffer{}, false)
	require.NoError(t, err)
	router := newRouter(a.config, a.runtime.HTTPHandler(core.MessageHandlerFunc(func(context.Context, core.InboundMessage) error {
		t.Fatalf("partial group must not be delivered")
		return nil
	})))
	req := httptest.NewRequest(http.MethodPost, a.config.HTTP.Path, strings.NewReader(partialPayload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Partial message received.", strings.TrimSpace(rec.Body.String()))
	require.NoError(t, a.Close())

	out = runCLI(t, "pending", "--config", path)
	assert.Contains(t, out, "REF")
	assert.Contains(t, out, "78")
	assert.Contains(t, out, "447700900419")

	out = runCLI(t, "purge", "--config", path)
	assert.Contains(t, out, "Purged 0 stale part(s)")

	time.Sleep(20 * time.Millisecond)
	out = runCLI(t, "purge", "--config", path, "--stale-after", "1ms")
	assert.Contains(t, out, "Purged 1 stale part(s)")

	out = runCLI(t, "pending", "--config", path)
	assert.Contains(t, out, "No pending groups.")
}

func TestRouter_HealthAndMethodCheck(t *testing.T) {
	cfg := core.DefaultConfig()
	router := newRouter(cfg, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, cfg.HTTP.Path, nil))
	assert.Equal(t, http.StatusTeapot, rec.Code, "webhook path should reach the pipeline for every method")
}

func TestSchedulePurge(t *testing.T) {
	scheduler, err := schedulePurge("@every 1h", nil)
	require.NoError(t, err)
	assert.Len(t, scheduler.Entries(), 1)

	scheduler, err = schedulePurge("", nil)
	require.NoError(t, err)
	assert.Empty(t, scheduler.Entries())

	_, err = schedulePurge("every tuesday", nil)
	require.Error(t, err)
}

func TestMessageLogger_LogsDeliveredMessage(t *testing.T) {
	var buf bytes.Buffer
	handler := newMessageLogger(nil, gologger.NewSlogLogger(&buf, "info"), "")

	err := handler.HandleMessage(context.Background(), core.InboundMessage{
		MessageID:  "0B000000D0EBB58D",
		Sender:     "447700900419",
		Recipient:  "447700900996",
		Kind:       core.KindText,
		Content:    core.TextContent{Text: "Hello world"},
		Reassembly: &core.Reassembly{Ref: "42", Parts: 2},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"message received"`)
	assert.Contains(t, buf.String(), `"text":"Hello world"`)
	assert.Contains(t, buf.String(), `"concat_ref":"42"`)
}

func TestVersionCommand(t *testing.T) {
	out := runCLI(t, "version")
	assert.Contains(t, out, "smshook dev")
}
