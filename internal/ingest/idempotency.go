package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/kv"
)

const (
	DefaultIdempotencyTTL = 24 * time.Hour
	inFlight              = "pending"
)

// Idempotency remembers which job an Idempotency-Key produced, per owner.
type Idempotency struct {
	store kv.Store
	ttl   time.Duration
}

func NewIdempotency(store kv.Store, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &Idempotency{store: kv.NewScoped(store, "idem"), ttl: ttl}
}

func idemKey(owner, key string) string { return owner + ":" + key }

// Reserve claims key for owner. When the key already produced a job, that job's id is
// returned with reserved=false. A key whose first request is still running is a conflict.
func (i *Idempotency) Reserve(ctx context.Context, owner, key string) (prior uuid.UUID, reserved bool, err error) {
	k := idemKey(owner, key)
	ok, err := i.store.PutIfAbsent(ctx, k, []byte(inFlight), i.ttl)
	if err != nil {
		return uuid.Nil, false, err
	}
	if ok {
		return uuid.Nil, true, nil
	}
	v, err := i.store.Get(ctx, k)
	if errors.Is(err, kv.ErrNotFound) {
		// expired between the two calls
		return i.Reserve(ctx, owner, key)
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	if string(v) == inFlight {
		return uuid.Nil, false, common.NewAppError(constants.ErrCodeConflict,
			"a request with this Idempotency-Key is still in progress", common.ErrConflict)
	}
	id, err := uuid.ParseBytes(v)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, false, nil
}

// Complete records the job a reserved key produced.
func (i *Idempotency) Complete(ctx context.Context, owner, key string, jobID uuid.UUID) error {
	return i.store.Put(ctx, idemKey(owner, key), []byte(jobID.String()), i.ttl)
}

// Abandon frees a reserved key after a failed request so the client may retry.
func (i *Idempotency) Abandon(ctx context.Context, owner, key string) error {
	return i.store.Delete(ctx, idemKey(owner, key))
}
