package protect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchguard/branchguard/internal/ledger"
	"github.com/branchguard/branchguard/internal/storage"
	"github.com/branchguard/branchguard/internal/webhook"
)

type apiCall struct {
	method   string
	endpoint string
	body     any
}

type fakeAPI struct {
	mu       sync.Mutex
	calls    []apiCall
	failPut  bool
	failPost bool
	issueURL string
}

func (f *fakeAPI) Put(_ context.Context, endpoint string, body, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{method: "PUT", endpoint: endpoint, body: body})
	if f.failPut {
		return errors.New("protection rejected")
	}
	return nil
}

func (f *fakeAPI) Post(_ context.Context, endpoint string, body, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{method: "POST", endpoint: endpoint, body: body})
	if f.failPost {
		return errors.New("issues disabled")
	}
	if resp, ok := out.(*createIssueResponse); ok {
		resp.HTMLURL = f.issueURL
	}
	return nil
}

func (f *fakeAPI) recorded() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

func newTestGuard(t *testing.T, api *fakeAPI) (*Guard, *ledger.Ledger) {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "deliveries.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	deliveries := ledger.New(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(api, deliveries, logger), deliveries
}

func defaultBranchEvent() webhook.RefCreationEvent {
	return webhook.RefCreationEvent{
		Ref:          "main",
		RefType:      webhook.RefBranch,
		MasterBranch: "main",
		Repository: webhook.Repository{
			Name:  "new-service",
			Owner: webhook.User{Login: "acme"},
		},
		Sender: webhook.User{Login: "jdoe"},
	}
}

func TestProtectsNewDefaultBranch(t *testing.T) {
	api := &fakeAPI{issueURL: "https://github.com/acme/new-service/issues/1"}
	guard, deliveries := newTestGuard(t, api)

	info := guard.HandleRefCreation("delivery-1", []byte(`{"ref":"main"}`), defaultBranchEvent())
	assert.Equal(t, "creating branch protection rules and notifying creator of the default branch", info)
	guard.Wait()

	calls := api.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "PUT", calls[0].method)
	assert.Equal(t, "repos/acme/new-service/branches/main/protection", calls[0].endpoint)
	assert.Equal(t, "POST", calls[1].method)
	assert.Equal(t, "repos/acme/new-service/issues", calls[1].endpoint)

	issue, ok := calls[1].body.(createIssueRequest)
	require.True(t, ok)
	assert.Equal(t, "Branch protection automatically set up", issue.Title)
	assert.Contains(t, issue.Body, "@jdoe")
	assert.Contains(t, issue.Body, "`main`")

	recent, err := deliveries.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "delivery-1", recent[0].ID)
	assert.Equal(t, ledger.StatusCompleted, recent[0].Status)
	assert.Equal(t, api.issueURL, recent[0].Detail)
	assert.Equal(t, "acme/new-service", recent[0].Repository)
}

func TestIgnoresTagCreation(t *testing.T) {
	api := &fakeAPI{}
	guard, deliveries := newTestGuard(t, api)

	event := defaultBranchEvent()
	event.Ref = "v1.0.0"
	event.RefType = webhook.RefTag

	info := guard.HandleRefCreation("delivery-2", []byte(`{"ref":"v1.0.0"}`), event)
	guard.Wait()

	assert.Equal(t, "not listening to this ref creation event", info)
	assert.Empty(t, api.recorded())

	recent, err := deliveries.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, ledger.StatusIgnored, recent[0].Status)
}

func TestIgnoresNonDefaultBranch(t *testing.T) {
	api := &fakeAPI{}
	guard, _ := newTestGuard(t, api)

	event := defaultBranchEvent()
	event.Ref = "feature/login"

	info := guard.HandleRefCreation("delivery-3", []byte(`{"ref":"feature/login"}`), event)
	guard.Wait()

	assert.Equal(t, "not listening to this ref creation event", info)
	assert.Empty(t, api.recorded())
}

func TestIgnoresRedeliveredPayload(t *testing.T) {
	api := &fakeAPI{issueURL: "https://github.com/acme/new-service/issues/1"}
	guard, _ := newTestGuard(t, api)

	payload := []byte(`{"ref":"main","repository":{"name":"new-service"}}`)
	guard.HandleRefCreation("delivery-4", payload, defaultBranchEvent())
	guard.Wait()

	info := guard.HandleRefCreation("delivery-5", payload, defaultBranchEvent())
	guard.Wait()

	assert.Equal(t, "already processed this delivery", info)
	assert.Len(t, api.recorded(), 2)
}

func TestRecordsProtectionFailure(t *testing.T) {
	api := &fakeAPI{failPut: true}
	guard, deliveries := newTestGuard(t, api)

	guard.HandleRefCreation("delivery-6", []byte(`{"n":6}`), defaultBranchEvent())
	guard.Wait()

	calls := api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "PUT", calls[0].method)

	recent, err := deliveries.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, ledger.StatusFailed, recent[0].Status)
	assert.Contains(t, recent[0].Detail, "branch protection")
}

func TestRecordsNotificationFailure(t *testing.T) {
	api := &fakeAPI{failPost: true}
	guard, deliveries := newTestGuard(t, api)

	guard.HandleRefCreation("delivery-7", []byte(`{"n":7}`), defaultBranchEvent())
	guard.Wait()

	recent, err := deliveries.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, ledger.StatusFailed, recent[0].Status)
	assert.Contains(t, recent[0].Detail, "notification issue")
}
