package dupindex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores the duplicate log as one list per normalized link,
// RPUSHed with JSON provenance entries. Appends need no transactions:
// the log is advisory and duplicate entries are acceptable.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Redis{client: client, prefix: "dup:"}, nil
}

// NewRedisWithClient builds an index from an existing client.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "dup:"}
}

func (r *Redis) key(link string) string {
	return r.prefix + link
}

func (r *Redis) Check(ctx context.Context, links []string) ([]Duplicate, error) {
	var out []Duplicate
	for _, link := range links {
		link = Normalize(link)
		values, err := r.client.LRange(ctx, r.key(link), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("read duplicate log for %s: %w", link, err)
		}
		if len(values) == 0 {
			continue
		}
		provs := make([]Provenance, 0, len(values))
		for _, value := range values {
			var prov Provenance
			if err := json.Unmarshal([]byte(value), &prov); err != nil {
				// A corrupt entry degrades one tuple, not the whole check.
				continue
			}
			provs = append(provs, prov)
		}
		out = append(out, Duplicate{Link: link, Provenance: provs})
	}
	return out, nil
}

func (r *Redis) Record(ctx context.Context, links []string, prov Provenance) error {
	data, err := json.Marshal(prov)
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}
	pipe := r.client.Pipeline()
	for _, link := range links {
		link = Normalize(link)
		if link == "" {
			continue
		}
		pipe.RPush(ctx, r.key(link), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append duplicate log: %w", err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
