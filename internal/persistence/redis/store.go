// Package redis implements the progress Store on Redis, the deployment's
// primary backend. The atomic apply runs as a single server-side Lua script
// so the increment, the crossed flag and the last-update timestamp are never
// observable half-applied.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"example.com/progress/internal/domain"
)

const (
	recordKeyFormat       = "progress:%d:%s"
	participantsKeyFormat = "exercise:%s:participants"
	userInfoKeyFormat     = "user:info:%d"

	fieldTotal     = "total"
	fieldCrossed   = "crossed"
	fieldUpdatedAt = "updated_at"
)

// applyScript increments the record, stamps it, sets the sticky crossed flag
// when the goal is reached, registers the participant and refreshes the user
// profile, all in one atomic unit. Returns {newTotal, prevCrossed}.
var applyScript = goredis.NewScript(`
local record = KEYS[1]
local participants = KEYS[2]
local userinfo = KEYS[3]
local amount = tonumber(ARGV[1])
local goal = tonumber(ARGV[2])
local now = ARGV[3]
local user_id = ARGV[4]
local first_name = ARGV[5]
local username = ARGV[6]

local prev = redis.call('HGET', record, 'crossed')
local total = redis.call('HINCRBY', record, 'total', amount)
redis.call('HSET', record, 'updated_at', now)
if prev ~= '1' and goal > 0 and total >= goal then
  redis.call('HSET', record, 'crossed', '1')
end

redis.call('SADD', participants, user_id)
redis.call('HSET', userinfo, 'first_name', first_name, 'last_update', now)
if username ~= '' then
  redis.call('HSET', userinfo, 'username', username)
else
  redis.call('HDEL', userinfo, 'username')
end

if prev == '1' then
  return {total, 1}
end
return {total, 0}
`)

// Config carries connection settings for the Redis backend.
type Config struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// Store is the Redis-backed domain.Store.
type Store struct {
	rdb *goredis.Client
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Store{rdb: rdb}, nil
}

// NewWithClient wraps an existing client, for tests.
func NewWithClient(rdb *goredis.Client) *Store {
	return &Store{rdb: rdb}
}

// Apply implements domain.Store.
func (s *Store) Apply(ctx context.Context, user domain.UserIdentity, exerciseID string, amount, goal int64, now time.Time) (domain.ApplyResult, error) {
	keys := []string{
		recordKey(user.ID, exerciseID),
		participantsKey(exerciseID),
		userInfoKey(user.ID),
	}
	args := []interface{}{
		amount,
		goal,
		strconv.FormatInt(now.Unix(), 10),
		strconv.FormatInt(user.ID, 10),
		user.FirstName,
		user.Username,
	}

	raw, err := applyScript.Run(ctx, s.rdb, keys, args...).Slice()
	if err != nil {
		return domain.ApplyResult{}, unavailable("apply script", err)
	}
	if len(raw) != 2 {
		return domain.ApplyResult{}, fmt.Errorf("%w: apply script returned %d values", domain.ErrCorruptState, len(raw))
	}

	newTotal, ok1 := raw[0].(int64)
	prevCrossed, ok2 := raw[1].(int64)
	if !ok1 || !ok2 {
		return domain.ApplyResult{}, fmt.Errorf("%w: apply script returned %T/%T", domain.ErrCorruptState, raw[0], raw[1])
	}

	return domain.ApplyResult{NewTotal: newTotal, PrevCrossed: prevCrossed == 1}, nil
}

// ReadRecord implements domain.Store.
func (s *Store) ReadRecord(ctx context.Context, key domain.RecordKey) (domain.ProgressRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, recordKey(key.UserID, key.ExerciseID)).Result()
	if err != nil {
		return domain.ProgressRecord{}, unavailable("read record", err)
	}
	if len(fields) == 0 {
		return domain.ProgressRecord{}, fmt.Errorf("%w: user=%d exercise=%s", domain.ErrRecordNotFound, key.UserID, key.ExerciseID)
	}
	return parseRecord(fields)
}

// ReadRecords implements domain.Store, pipelining one HGETALL per exercise.
func (s *Store) ReadRecords(ctx context.Context, userID int64, exerciseIDs []string) (map[string]domain.ProgressRecord, error) {
	pipe := s.rdb.Pipeline()
	cmds := make(map[string]*goredis.MapStringStringCmd, len(exerciseIDs))
	for _, exerciseID := range exerciseIDs {
		cmds[exerciseID] = pipe.HGetAll(ctx, recordKey(userID, exerciseID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable("read records", err)
	}

	out := make(map[string]domain.ProgressRecord, len(exerciseIDs))
	for exerciseID, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := parseRecord(fields)
		if err != nil {
			return nil, err
		}
		out[exerciseID] = rec
	}
	return out, nil
}

// ExerciseRecords implements domain.Store, pipelining one HGETALL per user.
func (s *Store) ExerciseRecords(ctx context.Context, exerciseID string, userIDs []int64) (map[int64]domain.ProgressRecord, error) {
	pipe := s.rdb.Pipeline()
	cmds := make(map[int64]*goredis.MapStringStringCmd, len(userIDs))
	for _, userID := range userIDs {
		cmds[userID] = pipe.HGetAll(ctx, recordKey(userID, exerciseID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable("read exercise records", err)
	}

	out := make(map[int64]domain.ProgressRecord, len(userIDs))
	for userID, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := parseRecord(fields)
		if err != nil {
			return nil, err
		}
		out[userID] = rec
	}
	return out, nil
}

// Participants implements domain.Store.
func (s *Store) Participants(ctx context.Context, exerciseID string) ([]int64, error) {
	members, err := s.rdb.SMembers(ctx, participantsKey(exerciseID)).Result()
	if err != nil {
		return nil, unavailable("read participants", err)
	}

	out := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: participant %q of %s", domain.ErrCorruptState, member, exerciseID)
		}
		out = append(out, id)
	}
	return out, nil
}

// ReadUser implements domain.Store.
func (s *Store) ReadUser(ctx context.Context, userID int64) (domain.UserInfo, error) {
	fields, err := s.rdb.HGetAll(ctx, userInfoKey(userID)).Result()
	if err != nil {
		return domain.UserInfo{}, unavailable("read user", err)
	}
	if len(fields) == 0 {
		return domain.UserInfo{}, fmt.Errorf("%w: id=%d", domain.ErrUserNotFound, userID)
	}

	info := domain.UserInfo{
		ID:        userID,
		FirstName: fields["first_name"],
		Username:  fields["username"],
	}
	if raw, ok := fields["last_update"]; ok && raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.UserInfo{}, fmt.Errorf("%w: last_update %q for user %d", domain.ErrCorruptState, raw, userID)
		}
		info.LastUpdate = time.Unix(seconds, 0).UTC()
	}
	return info, nil
}

// Close implements domain.Store.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func parseRecord(fields map[string]string) (domain.ProgressRecord, error) {
	var rec domain.ProgressRecord

	rawTotal, ok := fields[fieldTotal]
	if !ok {
		return domain.ProgressRecord{}, fmt.Errorf("%w: record missing total field", domain.ErrCorruptState)
	}
	total, err := strconv.ParseInt(rawTotal, 10, 64)
	if err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("%w: total %q", domain.ErrCorruptState, rawTotal)
	}
	rec.Total = total
	rec.Crossed = fields[fieldCrossed] == "1"

	if raw, ok := fields[fieldUpdatedAt]; ok && raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.ProgressRecord{}, fmt.Errorf("%w: updated_at %q", domain.ErrCorruptState, raw)
		}
		rec.UpdatedAt = time.Unix(seconds, 0).UTC()
	}
	return rec, nil
}

// unavailable classifies transport-level Redis failures as transient.
func unavailable(op string, err error) error {
	if errors.Is(err, goredis.Nil) {
		return fmt.Errorf("%w: %s: unexpected nil reply", domain.ErrCorruptState, op)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

func recordKey(userID int64, exerciseID string) string {
	return fmt.Sprintf(recordKeyFormat, userID, exerciseID)
}

func participantsKey(exerciseID string) string {
	return fmt.Sprintf(participantsKeyFormat, exerciseID)
}

func userInfoKey(userID int64) string {
	return fmt.Sprintf(userInfoKeyFormat, userID)
}
