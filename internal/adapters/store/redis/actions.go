package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"pm2gate/internal/core/domain"
)

const (
	actionKeyPrefix = "pm2gate:actions:"
	actionKeep      = 100
)

// ActionStore keeps a capped per-process ring of control-action records
// in Redis. The history is transient: LTRIM bounds each list, nothing is ever
// migrated or replayed from here.
type ActionStore struct {
	client *redis.Client
}

// NewActionStore also returns the raw client so the health service can
// ping the same connection.
func NewActionStore(url string) (*ActionStore, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	return &ActionStore{client: client}, client, nil
}

func (s *ActionStore) Record(ctx context.Context, rec domain.ActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := actionKeyPrefix + rec.Process
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, actionKeep-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *ActionStore) Recent(ctx context.Context, process string, limit int) ([]domain.ActionRecord, error) {
	if limit <= 0 || limit > actionKeep {
		limit = actionKeep
	}
	raw, err := s.client.LRange(ctx, actionKeyPrefix+process, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	recs := make([]domain.ActionRecord, 0, len(raw))
	for _, item := range raw {
		var rec domain.ActionRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
