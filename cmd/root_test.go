package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
	"github.com/JakeFAU/catalog-alerts/internal/config"
)

type fakeApp struct {
	report   alert.CycleReport
	pollErr  error
	imported alert.SubscriptionDocument
	migrated bool
	closed   bool
}

func (f *fakeApp) PollOnce(context.Context) (alert.CycleReport, error) {
	return f.report, f.pollErr
}

func (f *fakeApp) Serve(context.Context) error {
	return nil
}

func (f *fakeApp) Migrate(context.Context) error {
	f.migrated = true
	return nil
}

func (f *fakeApp) ImportSubscriptions(_ context.Context, doc alert.SubscriptionDocument) error {
	f.imported = doc
	return nil
}

func (f *fakeApp) Close() {
	f.closed = true
}

func useFakeApp(t *testing.T, app *fakeApp) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, *config.Config, *zap.Logger) (App, error) { return app, nil }
	t.Cleanup(func() { newApp = orig })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPollPrintsReport(t *testing.T) {
	app := &fakeApp{report: alert.CycleReport{CycleID: "c1", BoardsRouted: []string{"g"}}}
	useFakeApp(t, app)

	out, err := execute(t, "poll")
	require.NoError(t, err)

	var got alert.CycleReport
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "c1", got.CycleID)
	assert.Equal(t, []string{"g"}, got.BoardsRouted)
	assert.True(t, app.closed)
}

func TestPollReturnsCycleError(t *testing.T) {
	app := &fakeApp{pollErr: alert.ErrFetch}
	useFakeApp(t, app)

	_, err := execute(t, "poll")
	require.Error(t, err)
	assert.ErrorIs(t, err, alert.ErrFetch)
	assert.True(t, app.closed)
}

func TestMigrate(t *testing.T) {
	app := &fakeApp{}
	useFakeApp(t, app)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.True(t, app.migrated)
	assert.Contains(t, out, "schema up to date")
}

func TestSubscriptionsImport(t *testing.T) {
	app := &fakeApp{}
	useFakeApp(t, app)

	path := filepath.Join(t.TempDir(), "subs.yaml")
	doc := "rust:\n  terms: [rust]\n  boards: [g]\n  webhooks: [hook-a]\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	out, err := execute(t, "subscriptions", "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 labels")
	require.Contains(t, app.imported, "rust")
	assert.Equal(t, []string{"hook-a"}, app.imported["rust"].Subscribers)
}

func TestResolveAppMissing(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}

func TestNewAppFailure(t *testing.T) {
	orig := newApp
	newApp = func(context.Context, *config.Config, *zap.Logger) (App, error) {
		return nil, errors.New("boom")
	}
	t.Cleanup(func() { newApp = orig })

	_, err := execute(t, "poll")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
