package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/sentinel/pkg/api"
)

// RedisStore is an EventStore and CursorStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>seq               => INCR counter for event ids
//	<prefix>ev:<id>           => gob-encoded redisEventPayload (without the id)
//	<prefix>idx:all           => ZSET of event ids scored by id
//	<prefix>idx:type:<type>   => ZSET of event ids scored by timestamp
//	<prefix>cursors           => HASH of cursor name -> last consumed id
//
// Append assigns the id and writes every key in one Lua script, so an event
// is visible in idx:all as soon as its id is, and never after a later id.
// The event key is built inside the script, so all keys must live on one
// node.
//
// Contracts are not kept in Redis; pair it with a SQL or in-memory
// ContractStore.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ EventStore = (*RedisStore)(nil)

var _ CursorStore = (*RedisStore)(nil)

type redisEventPayload struct {
	EventType   string
	Timestamp   int64
	Description string
	Tags        []string
}

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "sentinel:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sentinel:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) keySeq() string {
	return s.prefix + "seq"
}

func (s *RedisStore) keyEvent(id int64) string {
	return s.prefix + "ev:" + strconv.FormatInt(id, 10)
}

func (s *RedisStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisStore) keyType(eventType string) string {
	return s.prefix + "idx:type:" + eventType
}

func (s *RedisStore) keyCursors() string {
	return s.prefix + "cursors"
}

func encodeRedisEvent(ev *api.Event) ([]byte, error) {
	payload := redisEventPayload{
		EventType:   ev.EventType,
		Timestamp:   ev.Timestamp,
		Description: ev.Description,
		Tags:        ev.Tags,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRedisEvent(id int64, data []byte) (api.Event, error) {
	var payload redisEventPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return api.Event{}, err
	}
	return api.Event{
		ID:          id,
		EventType:   payload.EventType,
		Timestamp:   payload.Timestamp,
		Description: payload.Description,
		Tags:        payload.Tags,
	}, nil
}

// redisAppendLua assigns the next id and indexes the event atomically.
//
//	KEYS[1] seq, KEYS[2] idx:all, KEYS[3] idx:type:<type>
//	ARGV[1] event key prefix, ARGV[2] payload, ARGV[3] timestamp
const redisAppendLua = `
local id = redis.call('INCR', KEYS[1])
redis.call('SET', ARGV[1] .. id, ARGV[2])
redis.call('ZADD', KEYS[2], id, id)
redis.call('ZADD', KEYS[3], ARGV[3], id)
return id
`

func (s *RedisStore) Append(ctx context.Context, ev *api.Event) (int64, error) {
	data, err := encodeRedisEvent(ev)
	if err != nil {
		return 0, err
	}

	id, err := s.client.Eval(ctx, redisAppendLua,
		[]string{s.keySeq(), s.keyAll(), s.keyType(ev.EventType)},
		s.prefix+"ev:", data, ev.Timestamp,
	).Int64()
	if err != nil {
		return 0, unavailable("append event", err)
	}
	ev.ID = id
	return id, nil
}

func (s *RedisStore) RangeQuery(ctx context.Context, eventTypes []string, minTs, maxTs int64) ([]api.Event, error) {
	if len(eventTypes) == 0 || minTs >= maxTs {
		return nil, nil
	}
	by := &redis.ZRangeBy{
		Min: strconv.FormatInt(minTs, 10),
		Max: "(" + strconv.FormatInt(maxTs, 10),
	}

	var ids []string
	for _, t := range eventTypes {
		members, err := s.client.ZRangeByScore(ctx, s.keyType(t), by).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, unavailable("range query", err)
		}
		ids = append(ids, members...)
	}

	events, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

func (s *RedisStore) LatestBefore(ctx context.Context, eventType string, maxTs int64) (*api.Event, error) {
	ids, err := s.client.ZRevRangeByScore(ctx, s.keyType(eventType), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(maxTs, 10),
		Count: 1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("latest before", err)
	}
	events, err := s.load(ctx, ids)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return &events[0], nil
}

func (s *RedisStore) ItemsAfter(ctx context.Context, lastID int64, limit int) ([]api.Event, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.keyAll(), &redis.ZRangeBy{
		Min:   "(" + strconv.FormatInt(lastID, 10),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("items after", err)
	}
	return s.load(ctx, ids)
}

func (s *RedisStore) MostRecentID(ctx context.Context) (int64, error) {
	id, err := s.client.Get(ctx, s.keySeq()).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, unavailable("most recent id", err)
	}
	return id, nil
}

// load fetches payloads for ids, keeping their order.
func (s *RedisStore) load(ctx context.Context, ids []string) ([]api.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	nums := make([]int64, len(ids))
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, member := range ids {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("load events: bad id %q: %w", member, err)
		}
		nums[i] = id
		cmds[i] = pipe.Get(ctx, s.keyEvent(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("load events", err)
	}

	events := make([]api.Event, 0, len(ids))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, unavailable("load events", err)
		}
		ev, err := decodeRedisEvent(nums[i], data)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *RedisStore) LoadOrCreate(ctx context.Context, name string) (api.QueueStats, error) {
	if err := s.client.HSetNX(ctx, s.keyCursors(), name, 0).Err(); err != nil {
		return api.QueueStats{}, unavailable("load cursor", err)
	}
	id, err := s.client.HGet(ctx, s.keyCursors(), name).Int64()
	if err != nil {
		return api.QueueStats{}, unavailable("load cursor", err)
	}
	return api.QueueStats{Name: name, LastConsumedID: id}, nil
}

func (s *RedisStore) Save(ctx context.Context, stats api.QueueStats) error {
	err := s.client.HSet(ctx, s.keyCursors(), stats.Name, stats.LastConsumedID).Err()
	return unavailable("save cursor", err)
}
