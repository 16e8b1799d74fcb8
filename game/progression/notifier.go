package progression

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/framecraft/engagement/cache"
	"github.com/framecraft/engagement/plugin/hook"
)

const (
	// MetricsKey is the cache hash counting dispatched events by name.
	MetricsKey   = "metrics:events"
	recentPrefix = "recent:"
	recentLimit  = 20
	notifierName = "notifier"
)

// EventChannel is the pub/sub channel carrying one user's celebrations.
func EventChannel(orgID, userID string) string {
	return "events:" + orgID + ":" + userID
}

// RecentKey is the cache list holding one user's latest celebrations.
func RecentKey(orgID, userID string) string {
	return recentPrefix + orgID + ":" + userID
}

// Notifier fans committed events out to metrics, the recent list and the
// user's live stream.
type Notifier struct {
	cache  cache.Cache
	pubsub cache.PubSub
}

// NewNotifier creates a Notifier. Either backend may be nil.
func NewNotifier(c cache.Cache, ps cache.PubSub) *Notifier {
	return &Notifier{cache: c, pubsub: ps}
}

// Register attaches the notifier to hc: metrics for every event, and the
// stream and recent list for celebrations.
func (n *Notifier) Register(hc *hook.HookCenter) {
	hc.RegisterAll(hook.AllEvents, 100, notifierName, n.count)
	hc.RegisterAll(hook.Celebrations, 110, notifierName, n.announce)
}

func (n *Notifier) count(ctx context.Context, ev *hook.Event) error {
	if n.cache == nil {
		return nil
	}
	_, err := n.cache.HIncrBy(ctx, MetricsKey, ev.Name, 1)
	return err
}

func (n *Notifier) announce(ctx context.Context, ev *hook.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if n.cache != nil {
		key := RecentKey(ev.OrgID, ev.UserID)
		if err := n.cache.PushCapped(ctx, key, string(raw), recentLimit); err != nil {
			return err
		}
	}
	if n.pubsub != nil {
		return n.pubsub.Publish(ctx, EventChannel(ev.OrgID, ev.UserID), string(raw))
	}
	return nil
}

// Recent returns the user's latest celebrations, newest first.
func (n *Notifier) Recent(ctx context.Context, orgID, userID string) ([]hook.Event, error) {
	if n.cache == nil {
		return nil, nil
	}
	items, err := n.cache.LRange(ctx, RecentKey(orgID, userID), 0, recentLimit-1)
	if err != nil {
		return nil, err
	}
	out := make([]hook.Event, 0, len(items))
	for _, it := range items {
		var ev hook.Event
		if err := json.Unmarshal([]byte(it), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
