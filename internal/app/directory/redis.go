package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"stickychat/internal/app/priority"
	"stickychat/internal/app/user"
	"stickychat/internal/pkg/logx"
)

const (
	// DefaultPresenceTTL is how long a presence key survives without a heartbeat.
	DefaultPresenceTTL = 90 * time.Second

	defaultKeyPrefix = "stickychat:"

	fieldInstance = "instance"
	fieldPriority = "priority"
)

// releaseScript deletes a presence key only if it still names this instance, so a
// late disconnect cannot erase a newer connection made on another instance.
var releaseScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "instance") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends a presence key held by this instance and reclaims one that
// expired. It returns 0 when another instance holds the key.
const refreshScript = `
local owner = redis.call("HGET", KEYS[1], "instance")
if owner == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if not owner then
	redis.call("HSET", KEYS[1], "instance", ARGV[1], "priority", ARGV[3])
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0
`

// Redis shares presence across the cluster. Each connected player owns a hash
// holding the instance name and the session's tier; keys expire unless refreshed by Run.
type Redis struct {
	client   redis.UniversalClient
	instance string
	prefix   string
	ttl      time.Duration

	// mu protects local and moved.
	mu sync.Mutex

	// local holds the players connected to this instance, refreshed on every heartbeat.
	local map[user.ID]priority.Level

	// moved is told about local players whose presence another instance has taken.
	moved func(id user.ID)

	logger zerolog.Logger
}

// NewRedis returns a cluster directory for instance.
func NewRedis(client redis.UniversalClient, instance string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &Redis{
		client:   client,
		instance: instance,
		prefix:   defaultKeyPrefix,
		ttl:      ttl,
		local:    make(map[user.ID]priority.Level),
		logger:   logx.Component("RedisDirectory").With().Str("instance", instance).Logger(),
	}
}

var (
	_ Directory = (*Redis)(nil)
	_ Tracker   = (*Redis)(nil)
)

// NotifyMoved registers fn to be called when a heartbeat finds that another instance
// has taken over the presence of a player still connected here.
func (r *Redis) NotifyMoved(fn func(id user.ID)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moved = fn
}

func (r *Redis) presenceKey(id user.ID) string {
	return r.prefix + "presence:" + id.String()
}

func (r *Redis) knownKey() string {
	return r.prefix + "known"
}

func (r *Redis) Locate(ctx context.Context, id user.ID) (Location, error) {
	fields, err := r.client.HMGet(ctx, r.presenceKey(id), fieldInstance, fieldPriority).Result()
	if err != nil {
		return Location{}, fmt.Errorf("locate %s: %w", id, err)
	}

	instance, _ := fields[0].(string)
	if instance == "" {
		return Location{Kind: Offline}, nil
	}

	name, _ := fields[1].(string)
	level, err := priority.Parse(name)
	if err != nil {
		r.logger.Warn().Str("user_id", id.String()).Str("priority", name).Msg("Unknown priority in presence record.")
	}

	kind := Remote
	if instance == r.instance {
		kind = Local
	}
	return Location{Kind: kind, Instance: instance, Priority: level}, nil
}

func (r *Redis) Exists(ctx context.Context, id user.ID) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.knownKey(), id.String()).Result()
	if err != nil {
		return false, fmt.Errorf("check known %s: %w", id, err)
	}
	return ok, nil
}

// Connect claims id's presence for this instance.
func (r *Redis) Connect(ctx context.Context, id user.ID, level priority.Level) error {
	key := r.presenceKey(id)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldInstance, r.instance, fieldPriority, level.String())
		pipe.PExpire(ctx, key, r.ttl)
		pipe.SAdd(ctx, r.knownKey(), id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("connect %s: %w", id, err)
	}

	r.mu.Lock()
	r.local[id] = level
	r.mu.Unlock()
	return nil
}

// Disconnect releases id's presence if this instance still holds it.
func (r *Redis) Disconnect(ctx context.Context, id user.ID) error {
	r.mu.Lock()
	delete(r.local, id)
	r.mu.Unlock()

	if err := releaseScript.Run(ctx, r.client, []string{r.presenceKey(id)}, r.instance).Err(); err != nil {
		return fmt.Errorf("disconnect %s: %w", id, err)
	}
	return nil
}

// Run refreshes the presence keys of local players until ctx is cancelled.
func (r *Redis) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	r.logger.Info().Dur("ttl", r.ttl).Msg("Presence heartbeat started.")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Presence heartbeat stopped.")
			return nil
		case <-ticker.C:
			r.heartbeat(ctx)
		}
	}
}

// heartbeat refreshes every local presence key. Players whose key now names another
// instance are dropped from the local set and reported to the moved callback.
func (r *Redis) heartbeat(ctx context.Context) {
	r.mu.Lock()
	ids := make([]user.ID, 0, len(r.local))
	levels := make([]priority.Level, 0, len(r.local))
	for id, level := range r.local {
		ids = append(ids, id)
		levels = append(levels, level)
	}
	r.mu.Unlock()

	if len(ids) == 0 {
		return
	}

	ttl := r.ttl.Milliseconds()
	cmds, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			pipe.Eval(ctx, refreshScript, []string{r.presenceKey(id)}, r.instance, ttl, levels[i].String())
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Error().Err(err).Int("players", len(ids)).Msg("Presence heartbeat failed.")
	}

	var lost []user.ID
	for i, cmd := range cmds {
		held, err := cmd.(*redis.Cmd).Int()
		if err != nil || held != 0 {
			continue
		}
		lost = append(lost, ids[i])
	}
	if len(lost) == 0 {
		return
	}

	r.mu.Lock()
	for _, id := range lost {
		delete(r.local, id)
	}
	moved := r.moved
	r.mu.Unlock()

	for _, id := range lost {
		r.logger.Info().Str("user_id", id.String()).Msg("Presence taken over by another instance.")
		if moved != nil {
			moved(id)
		}
	}
}
