package memory

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// DeliveryLedger is the in-process counterpart of the redis delivery ledger.
type DeliveryLedger struct {
	claims *xsync.Map[string, time.Time]
	ttl    time.Duration
	now    func() time.Time
}

// NewDeliveryLedger constructs a ledger whose claims expire after ttl.
func NewDeliveryLedger(ttl time.Duration) *DeliveryLedger {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &DeliveryLedger{claims: xsync.NewMap[string, time.Time](), ttl: ttl, now: time.Now}
}

// Claim reports whether the caller won the (event, recipient) pair.
func (l *DeliveryLedger) Claim(ctx context.Context, eventID, email string) (bool, error) {
	now := l.now()
	claimed := false
	l.claims.Compute(eventID+"|"+normalizeEmail(email), func(expires time.Time, loaded bool) (time.Time, xsync.ComputeOp) {
		if loaded && now.Before(expires) {
			return expires, xsync.CancelOp
		}
		claimed = true
		return now.Add(l.ttl), xsync.UpdateOp
	})
	return claimed, nil
}

// Release frees a claim so a retry can send again.
func (l *DeliveryLedger) Release(ctx context.Context, eventID, email string) error {
	l.claims.Delete(eventID + "|" + normalizeEmail(email))
	return nil
}
