package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"dealership_backend/internal/cache"
	"dealership_backend/internal/metrics"
	"dealership_backend/internal/model"
	"dealership_backend/internal/push"
	"dealership_backend/internal/realtime"
	"dealership_backend/internal/repository"
	"dealership_backend/internal/task"
)

// RealtimeBroadcaster is the slice of the session registry the dispatcher uses.
type RealtimeBroadcaster interface {
	Broadcast(ev realtime.Event) int
	SendTo(principalID int64, ev realtime.Event) bool
}

// PushSender is the delivery gateway contract.
type PushSender interface {
	Enabled() bool
	Send(ctx context.Context, tokens []string, msg push.Message) push.Result
}

// Dispatcher turns notifications into inbox records, realtime events and pushes.
// Only the record write is synchronous and able to fail the call.
type Dispatcher struct {
	inbox      repository.InboxWriter
	devices    repository.DeviceTargetRepository
	principals repository.PrincipalRepository
	realtime   RealtimeBroadcaster
	gateway    PushSender
	runner     task.Runner
	unread     cache.UnreadCache
	logger     *zap.Logger
}

func NewDispatcher(
	inbox repository.InboxWriter,
	devices repository.DeviceTargetRepository,
	principals repository.PrincipalRepository,
	realtime RealtimeBroadcaster,
	gateway PushSender,
	runner task.Runner,
	unread cache.UnreadCache,
	logger *zap.Logger,
) *Dispatcher {
	if unread == nil {
		unread = cache.NopUnreadCache{}
	}
	return &Dispatcher{
		inbox:      inbox,
		devices:    devices,
		principals: principals,
		realtime:   realtime,
		gateway:    gateway,
		runner:     runner,
		unread:     unread,
		logger:     logger.Named("dispatcher"),
	}
}

// targetPool is one group of device targets that gets its own gateway call.
type targetPool struct {
	name    string
	resolve func(ctx context.Context) ([]model.DeviceTarget, error)
}

// plan is everything decided before the records are written.
type plan struct {
	batch       repository.InboxBatch
	operatorAll bool    // batch.Operator holds one operator-wide record
	userIDs     []int64 // recipients of user records
	operatorIDs []int64 // recipients of per-operator records
	pools       []targetPool
}

// Notify writes the inbox records for n, then fans out to realtime and push.
func (d *Dispatcher) Notify(ctx context.Context, n model.Notification) (model.DispatchResult, error) {
	var result model.DispatchResult

	if !n.Recipients.Valid() {
		return result, model.ErrInvalidRecipients
	}
	if strings.TrimSpace(n.Title) == "" || strings.TrimSpace(n.Body) == "" {
		return result, model.ErrEmptyMessage
	}
	if !n.Category.Valid() {
		n.Category = model.CategoryGeneral
	}

	p, err := d.plan(ctx, n)
	if err != nil {
		return result, err
	}

	written, err := d.inbox.Write(ctx, p.batch)
	if err != nil {
		d.logger.Error("inbox write failed",
			zap.String("category", string(n.Category)),
			zap.Stringer("recipients", n.Recipients),
			zap.Int("records", p.batch.Len()),
			zap.Error(err))
		return result, fmt.Errorf("write inbox records: %w", err)
	}
	result.RecordsWritten = written.Len()
	metrics.InboxRecordsWritten.WithLabelValues(string(model.AudienceUser)).Add(float64(len(written.User)))
	metrics.InboxRecordsWritten.WithLabelValues(string(model.AudienceOperator)).Add(float64(len(written.Operator)))

	d.invalidateUnread(ctx, p)
	d.publishRealtime(n, p, written)

	if len(p.pools) == 0 || !d.gateway.Enabled() {
		return result, nil
	}

	msg := push.Message{Title: n.Title, Body: n.Body, Data: pushData(n)}
	if n.WaitForDelivery {
		stats := d.deliver(ctx, n, p.pools, msg)
		result.PushSucceeded = stats.succeeded
		result.PushFailed = stats.failed
		result.InvalidPruned = stats.pruned
		return result, nil
	}

	name := fmt.Sprintf("push:%s:%s", n.Category, n.Recipients)
	result.PushQueued = d.runner.Go(name, func(ctx context.Context) error {
		d.deliver(ctx, n, p.pools, msg)
		return nil
	})
	return result, nil
}

// plan resolves recipients into records and target pools.
func (d *Dispatcher) plan(ctx context.Context, n model.Notification) (plan, error) {
	var p plan

	switch {
	case n.Recipients.IsPrincipals():
		ids := n.Recipients.IDs()
		roles, err := d.principals.GetRoles(ctx, ids)
		if err != nil {
			return p, fmt.Errorf("resolve recipients: %w", err)
		}
		for _, id := range ids {
			role, ok := roles[id]
			if !ok {
				d.logger.Warn("skipping unknown recipient", zap.Int64("principal_id", id))
				continue
			}
			if role.IsOperator() {
				p.operatorIDs = append(p.operatorIDs, id)
				p.batch.Operator = append(p.batch.Operator, newRecord(&id, n))
			} else {
				p.userIDs = append(p.userIDs, id)
				p.batch.User = append(p.batch.User, newRecord(&id, n))
			}
		}
		if p.batch.Len() == 0 {
			return p, model.ErrInvalidRecipients
		}
		owners := append(append([]int64(nil), p.userIDs...), p.operatorIDs...)
		p.pools = []targetPool{d.ownedPool("principals", owners)}

	case n.Recipients.IsOperators():
		p.operatorAll = true
		p.batch.Operator = []model.InboxRecord{newRecord(nil, n)}
		p.pools = []targetPool{{
			name: "operators",
			resolve: func(ctx context.Context) ([]model.DeviceTarget, error) {
				ids, err := d.principals.ListOperatorIDs(ctx)
				if err != nil {
					return nil, err
				}
				return d.devices.ListByUserIDs(ctx, ids)
			},
		}}

	case n.Recipients.IsBroadcast():
		ids, err := d.principals.ListActiveCustomerIDs(ctx)
		if err != nil {
			return p, fmt.Errorf("resolve broadcast recipients: %w", err)
		}
		p.userIDs = ids
		p.batch.User = make([]model.InboxRecord, 0, len(ids))
		for i := range ids {
			p.batch.User = append(p.batch.User, newRecord(&ids[i], n))
		}
		// Anonymous targets are push-only; they have no inbox.
		p.pools = []targetPool{
			d.ownedPool("registered", ids),
			{name: "anonymous", resolve: d.devices.ListAnonymous},
		}
	}

	return p, nil
}

func (d *Dispatcher) ownedPool(name string, ids []int64) targetPool {
	return targetPool{
		name: name,
		resolve: func(ctx context.Context) ([]model.DeviceTarget, error) {
			if len(ids) == 0 {
				return nil, nil
			}
			return d.devices.ListByUserIDs(ctx, ids)
		},
	}
}

func newRecord(recipientID *int64, n model.Notification) model.InboxRecord {
	var rid *int64
	if recipientID != nil {
		id := *recipientID
		rid = &id
	}
	return model.InboxRecord{
		RecipientID: rid,
		Category:    n.Category,
		Title:       n.Title,
		Body:        n.Body,
		Payload:     n.Payload.Clone(),
	}
}

type deliveryStats struct {
	succeeded int
	failed    int
	pruned    int
}

// deliver pushes to every pool and prunes permanently invalid targets.
// Nothing here fails the dispatch; problems are logged.
func (d *Dispatcher) deliver(ctx context.Context, n model.Notification, pools []targetPool, msg push.Message) deliveryStats {
	var stats deliveryStats

	for _, pool := range pools {
		targets, err := pool.resolve(ctx)
		if err != nil {
			d.logger.Warn("resolve push targets failed",
				zap.String("pool", pool.name),
				zap.String("category", string(n.Category)),
				zap.Error(err))
			continue
		}
		if len(targets) == 0 {
			continue
		}

		tokens := make([]string, len(targets))
		readAt := make(map[string]time.Time, len(targets))
		for i, t := range targets {
			tokens[i] = t.Token
			readAt[t.Token] = t.UpdatedAt
		}

		res := d.gateway.Send(ctx, tokens, msg)
		stats.succeeded += res.SuccessCount
		stats.failed += res.FailureCount

		if res.FailureCount > 0 {
			d.logger.Warn("push partially failed",
				zap.String("pool", pool.name),
				zap.String("category", string(n.Category)),
				zap.Stringer("recipients", n.Recipients),
				zap.Int("targets", len(tokens)),
				zap.Int("failed", res.FailureCount),
				zap.Int("invalid", len(res.InvalidTargets)))
		}

		for _, token := range res.InvalidTargets {
			// A target re-registered after it was resolved is not touched
			removed, err := d.devices.DeleteIfStale(ctx, token, readAt[token])
			if err != nil {
				d.logger.Warn("prune invalid target failed", zap.String("pool", pool.name), zap.Error(err))
				continue
			}
			if removed {
				stats.pruned++
				metrics.TargetsPruned.Inc()
			}
		}
	}

	d.logger.Debug("push delivered",
		zap.String("category", string(n.Category)),
		zap.Stringer("recipients", n.Recipients),
		zap.Int("sent", stats.succeeded),
		zap.Int("failed", stats.failed),
		zap.Int("pruned", stats.pruned))
	return stats
}

// publishRealtime hands operator records to the session registry. Enqueueing
// never blocks, so it runs on the caller's goroutine.
func (d *Dispatcher) publishRealtime(n model.Notification, p plan, written repository.InboxBatch) {
	if d.realtime == nil || len(written.Operator) == 0 {
		return
	}

	if p.operatorAll {
		rec := written.Operator[0]
		sessions := d.realtime.Broadcast(toRealtimeEvent(rec))
		d.logger.Debug("realtime broadcast", zap.Int64("record_id", rec.ID), zap.Int("sessions", sessions))
		return
	}

	for _, rec := range written.Operator {
		if rec.RecipientID == nil {
			continue
		}
		d.realtime.SendTo(*rec.RecipientID, toRealtimeEvent(rec))
	}
}

func toRealtimeEvent(rec model.InboxRecord) realtime.Event {
	return realtime.Event{
		Type:      "notification",
		RecordID:  rec.ID,
		Category:  rec.Category,
		Title:     rec.Title,
		Body:      rec.Body,
		Payload:   rec.Payload,
		CreatedAt: rec.CreatedAt,
	}
}

func (d *Dispatcher) invalidateUnread(ctx context.Context, p plan) {
	if err := d.unread.Invalidate(ctx, model.AudienceUser, p.userIDs...); err != nil {
		d.logger.Warn("invalidate user unread counts", zap.Error(err))
	}
	if p.operatorAll {
		if err := d.unread.InvalidateAudience(ctx, model.AudienceOperator); err != nil {
			d.logger.Warn("invalidate operator unread counts", zap.Error(err))
		}
		return
	}
	if err := d.unread.Invalidate(ctx, model.AudienceOperator, p.operatorIDs...); err != nil {
		d.logger.Warn("invalidate operator unread counts", zap.Error(err))
	}
}

// pushData is the payload plus the category under "type", which the apps route on.
func pushData(n model.Notification) map[string]string {
	data := make(map[string]string, len(n.Payload)+1)
	for k, v := range n.Payload {
		data[k] = v
	}
	data["type"] = string(n.Category)
	return data
}
