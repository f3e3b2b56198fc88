package adapters

import (
	"context"
	"fmt"
	"strconv"
	"time"

	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
	"github.com/redis/go-redis/v9"
)

var resolveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HGET', KEYS[1], 'status') ~= 'pending' then return 0 end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'output', ARGV[2], 'error', ARGV[3], 'resolved_at', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
return redis.call('HSETNX', KEYS[1], 'delivered_at', ARGV[1])
`)

// RedisLedger stores each call as a hash under prefix+callID.
type RedisLedger struct {
	rdb       redis.Cmdable
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisLedger creates a ledger; records expire retention after their last write.
func NewRedisLedger(rdb redis.Cmdable, prefix string, retention time.Duration) *RedisLedger {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisLedger{rdb: rdb, prefix: prefix, retention: retention, now: time.Now}
}

func (l *RedisLedger) key(callID string) string { return l.prefix + callID }

func (l *RedisLedger) Record(ctx context.Context, call ports.PendingCall) error {
	if call.CreatedAt.IsZero() {
		call.CreatedAt = l.now()
	}
	key := l.key(call.CallID)

	created, err := l.rdb.HSetNX(ctx, key, "created_at", call.CreatedAt.UnixMilli()).Result()
	if err != nil {
		return fmt.Errorf("failed to record call %s: %w", call.CallID, err)
	}
	if !created {
		return fmt.Errorf("call %s already recorded", call.CallID)
	}

	_, err = l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"tool", call.Tool,
			"args", string(call.Args),
			"owner", call.Owner,
			"status", string(ports.CallPending),
		)
		pipe.Expire(ctx, key, l.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record call %s: %w", call.CallID, err)
	}
	return nil
}

func (l *RedisLedger) Resolve(ctx context.Context, callID string, res ports.Resolution) error {
	n, err := resolveScript.Run(ctx, l.rdb, []string{l.key(callID)},
		string(res.Status), res.Output, res.Error, l.now().UnixMilli(), l.retention.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to resolve call %s: %w", callID, err)
	}
	if n < 0 {
		return ports.ErrCallNotFound
	}
	return nil
}

func (l *RedisLedger) Lookup(ctx context.Context, callID string) (ports.CallRecord, error) {
	fields, err := l.rdb.HGetAll(ctx, l.key(callID)).Result()
	if err != nil {
		return ports.CallRecord{}, fmt.Errorf("failed to look up call %s: %w", callID, err)
	}
	if len(fields) == 0 || fields["status"] == "" {
		return ports.CallRecord{}, ports.ErrCallNotFound
	}

	rec := ports.CallRecord{
		PendingCall: ports.PendingCall{
			CallID:    callID,
			Tool:      fields["tool"],
			Args:      []byte(fields["args"]),
			Owner:     fields["owner"],
			CreatedAt: parseMillis(fields["created_at"]),
		},
		Status:     ports.CallStatus(fields["status"]),
		Output:     fields["output"],
		Error:      fields["error"],
		ResolvedAt: parseMillis(fields["resolved_at"]),
	}
	_, rec.Delivered = fields["delivered_at"]
	return rec, nil
}

func (l *RedisLedger) Claim(ctx context.Context, callID string) (bool, error) {
	n, err := claimScript.Run(ctx, l.rdb, []string{l.key(callID)}, l.now().UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to claim call %s: %w", callID, err)
	}
	if n < 0 {
		return false, ports.ErrCallNotFound
	}
	return n == 1, nil
}

func (l *RedisLedger) Forget(ctx context.Context, callID string) error {
	if err := l.rdb.Del(ctx, l.key(callID)).Err(); err != nil {
		return fmt.Errorf("failed to forget call %s: %w", callID, err)
	}
	return nil
}

func parseMillis(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

var _ ports.Ledger = (*RedisLedger)(nil)
