// Package protect reacts to the creation of a repository's first branch by
// locking the new default branch behind pull request reviews and opening
// an issue that tells the creator what happened.
package protect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/branchguard/branchguard/internal/ledger"
	"github.com/branchguard/branchguard/internal/webhook"
)

// APIClient is the slice of the GitHub client this package needs.
type APIClient interface {
	Put(ctx context.Context, endpoint string, body, out any) error
	Post(ctx context.Context, endpoint string, body, out any) error
}

// DeliveryLog records delivery outcomes; see the ledger package.
type DeliveryLog interface {
	Record(ctx context.Context, d ledger.Delivery) (string, error)
	Complete(ctx context.Context, id, detail string) error
	Fail(ctx context.Context, id, detail string) error
	SeenPayload(ctx context.Context, payloadHash string) (bool, error)
}

// Guard handles validated ref creation events.
type Guard struct {
	api        APIClient
	deliveries DeliveryLog
	logger     *slog.Logger

	background sync.WaitGroup
}

// New creates a Guard. The API client is passed in explicitly; Guard never
// reaches for ambient globals.
func New(api APIClient, deliveries DeliveryLog, logger *slog.Logger) *Guard {
	return &Guard{
		api:        api,
		deliveries: deliveries,
		logger:     logger,
	}
}

// HandleRefCreation decides whether a create event concerns a repository's
// new default branch and, if so, dispatches the protection work without
// blocking the webhook acknowledgment. It returns the info message for the
// 200 response.
func (g *Guard) HandleRefCreation(deliveryID string, payload []byte, event webhook.RefCreationEvent) string {
	hash := ledger.PayloadHash(payload)
	logger := g.logger
	if deliveryID != "" {
		logger = logger.With("delivery_id", deliveryID)
	}

	// Only the creation of a branch matters, and only when that branch is
	// the default one: anything else means this is not the repository's
	// first branch.
	if event.RefType != webhook.RefBranch || event.Ref != event.MasterBranch {
		logger.Debug("unrelated ref creation event, ignoring",
			"ref", event.Ref, "ref_type", string(event.RefType))
		g.record(deliveryID, hash, event, ledger.StatusIgnored, "")
		return "not listening to this ref creation event"
	}

	if seen, err := g.deliveries.SeenPayload(context.Background(), hash); err != nil {
		logger.Error("could not check for redelivery", "error", err)
	} else if seen {
		logger.Warn("payload was already processed, ignoring redelivery")
		g.record(deliveryID, hash, event, ledger.StatusIgnored, "redelivery")
		return "already processed this delivery"
	}

	owner := event.Repository.Owner.Login
	repo := event.Repository.Name
	branch := event.Ref
	creator := event.Sender.Login

	logger.Info("repository created with a new default branch",
		"repository", owner+"/"+repo, "branch", branch)

	id := g.record(deliveryID, hash, event, ledger.StatusProtecting, "")

	// Protect the branch and open the issue in the background so the
	// webhook event is acknowledged immediately. Failures in here are
	// logged and recorded in the ledger, never surfaced to the sender.
	g.background.Add(1)
	go func() {
		defer g.background.Done()
		g.protectAndNotify(id, owner, repo, branch, creator)
	}()

	return "creating branch protection rules and notifying creator of the default branch"
}

// Wait blocks until all dispatched background work has finished. Called on
// shutdown and by tests.
func (g *Guard) Wait() {
	g.background.Wait()
}

// record writes a ledger entry, logging failures instead of letting them
// disturb the acknowledgment path.
func (g *Guard) record(deliveryID, hash string, event webhook.RefCreationEvent, status ledger.Status, detail string) string {
	id, err := g.deliveries.Record(context.Background(), ledger.Delivery{
		ID:          deliveryID,
		Event:       "create",
		Repository:  event.Repository.Owner.Login + "/" + event.Repository.Name,
		Branch:      event.Ref,
		PayloadHash: hash,
		Status:      status,
		Detail:      detail,
	})
	if err != nil {
		g.logger.Error("could not record delivery", "error", err)
		return deliveryID
	}
	return id
}

func (g *Guard) protectAndNotify(deliveryID, owner, repo, branch, creator string) {
	// Detached from the request; the webhook response has long been sent.
	ctx := context.Background()
	logger := g.logger.With("delivery_id", deliveryID, "repository", owner+"/"+repo)

	if err := g.api.Put(ctx,
		fmt.Sprintf("repos/%s/%s/branches/%s/protection", owner, repo, branch),
		newProtectBranchRequest(), nil); err != nil {
		logger.Error("could not set up branch protection rule", "branch", branch, "error", err)
		g.fail(deliveryID, fmt.Sprintf("branch protection: %v", err))
		return
	}

	logger.Info("set up branch protection rule", "branch", branch)

	var issue createIssueResponse
	if err := g.api.Post(ctx,
		fmt.Sprintf("repos/%s/%s/issues", owner, repo),
		newNotificationIssue(creator, branch), &issue); err != nil {
		logger.Error("could not notify repository creator about new branch protection rules", "error", err)
		g.fail(deliveryID, fmt.Sprintf("notification issue: %v", err))
		return
	}

	logger.Info("created issue informing about branch protection", "issue_url", issue.HTMLURL)

	if err := g.deliveries.Complete(ctx, deliveryID, issue.HTMLURL); err != nil {
		logger.Error("could not mark delivery completed", "error", err)
	}
}

func (g *Guard) fail(deliveryID, detail string) {
	if err := g.deliveries.Fail(context.Background(), deliveryID, detail); err != nil {
		g.logger.Error("could not mark delivery failed", "delivery_id", deliveryID, "error", err)
	}
}
