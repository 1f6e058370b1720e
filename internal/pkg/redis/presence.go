package redis

import (
	"Huddle/internal/model"
	"Huddle/internal/pkg/consts"
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// PresenceBackend keeps presence in Redis.
//
// Current records live in one hash and every change is announced on a pub/sub
// channel. An on-disconnect value is parked in a second hash next to a lease
// key that the connection watcher keeps alive; when the lease runs out the
// sweeper commits the parked value, so a crashed process still goes offline.
type PresenceBackend struct {
	rdb       *redis.Client
	heartbeat time.Duration
	leaseTTL  time.Duration
	now       func() time.Time
}

func NewPresenceBackend(rdb *redis.Client, heartbeat, leaseTTL time.Duration) *PresenceBackend {
	if heartbeat <= 0 {
		heartbeat = 5 * time.Second
	}
	if leaseTTL <= heartbeat {
		leaseTTL = 3 * heartbeat
	}
	return &PresenceBackend{
		rdb:       rdb,
		heartbeat: heartbeat,
		leaseTTL:  leaseTTL,
		now:       time.Now,
	}
}

// WatchConnection reports reachability of Redis for key and renews its lease
// on every successful heartbeat. A lease that is gone while Redis stays
// reachable is reported as a fresh connect so the caller registers again.
func (s *PresenceBackend) WatchConnection(ctx context.Context, key string, fn func(connected bool)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()

		known, last := false, false
		for {
			connected := s.rdb.Ping(ctx).Err() == nil
			leaseLost := false
			if connected {
				renewed, err := s.rdb.Expire(ctx, consts.PresenceLeaseKey+key, s.leaseTTL).Result()
				if err != nil && ctx.Err() == nil {
					log.WarnContext(ctx, "presence lease renew failed", "key", key, "err", err)
				}
				// swept while reachable, e.g. after a stalled heartbeat
				leaseLost = err == nil && !renewed && known && last
			}
			if ctx.Err() != nil {
				return
			}
			if !known || connected != last || leaseLost {
				if leaseLost {
					log.InfoContext(ctx, "presence lease lost, registering again", "key", key)
				}
				known, last = true, connected
				fn(connected)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return cancel, nil
}

func (s *PresenceBackend) SetOnDisconnect(ctx context.Context, key string, rec model.PresenceRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, consts.PresenceOnDisconnectKey, key, raw)
		pipe.Set(ctx, consts.PresenceLeaseKey+key, "1", s.leaseTTL)
		return nil
	})
	return err
}

func (s *PresenceBackend) SetValue(ctx context.Context, key string, rec model.PresenceRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, consts.PresenceStatusKey, key, raw)
		pipe.Publish(ctx, consts.PresenceChangesChannel, key)
		return nil
	})
	return err
}

// Subscribe delivers the whole hash once and again after every announced change.
func (s *PresenceBackend) Subscribe(ctx context.Context, fn func(map[string]model.PresenceRecord)) (func(), error) {
	pubsub := s.rdb.Subscribe(ctx, consts.PresenceChangesChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	records, err := s.Records(ctx)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	fn(records)

	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			_ = pubsub.Close()
		})
	}

	go func() {
		defer stop()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				records, err := s.Records(ctx)
				if err != nil {
					if ctx.Err() == nil {
						log.ErrorContext(ctx, "presence feed reload failed", "err", err)
					}
					continue
				}
				fn(records)
			}
		}
	}()
	return stop, nil
}

func (s *PresenceBackend) Disconnect(ctx context.Context, key string) error {
	_, err := s.commit(ctx, key)
	return err
}

// Records reads the current presence hash. Undecodable entries are skipped.
func (s *PresenceBackend) Records(ctx context.Context) (map[string]model.PresenceRecord, error) {
	raw, err := s.rdb.HGetAll(ctx, consts.PresenceStatusKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.PresenceRecord, len(raw))
	for key, value := range raw {
		var rec model.PresenceRecord
		if err := json.Unmarshal([]byte(value), &rec); err != nil {
			log.WarnContext(ctx, "presence record decode failed", "key", key, "err", err)
			continue
		}
		out[key] = rec
	}
	return out, nil
}

// Sweep commits the parked value of every key whose lease has expired and
// returns how many were committed.
func (s *PresenceBackend) Sweep(ctx context.Context) (int, error) {
	keys, err := s.rdb.HKeys(ctx, consts.PresenceOnDisconnectKey).Result()
	if err != nil {
		return 0, err
	}
	committed := 0
	for _, key := range keys {
		n, err := s.rdb.Exists(ctx, consts.PresenceLeaseKey+key).Result()
		if err != nil {
			return committed, err
		}
		if n > 0 {
			continue
		}
		ok, err := s.commit(ctx, key)
		if err != nil {
			return committed, err
		}
		if ok {
			committed++
		}
	}
	return committed, nil
}

func (s *PresenceBackend) commit(ctx context.Context, key string) (bool, error) {
	raw, err := s.rdb.HGet(ctx, consts.PresenceOnDisconnectKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var rec model.PresenceRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return false, err
	}
	rec.ChangedAt = s.now()
	value, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, consts.PresenceStatusKey, key, value)
		pipe.HDel(ctx, consts.PresenceOnDisconnectKey, key)
		pipe.Del(ctx, consts.PresenceLeaseKey+key)
		pipe.Publish(ctx, consts.PresenceChangesChannel, key)
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
