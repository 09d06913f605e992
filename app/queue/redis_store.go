package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "mailer"

// RedisStore keeps jobs in Redis:
//
//	<prefix>:<topic>:wait       list of waiting ids, consumed from the right
//	<prefix>:<topic>:active     list of ids being processed
//	<prefix>:<topic>:delayed    zset of ids scored by due time in ms
//	<prefix>:<topic>:completed  capped list, newest first
//	<prefix>:<topic>:failed     capped list, newest first
//	<prefix>:<topic>:paused     present while the topic is paused
//	<prefix>:<topic>:job:<id>   job hash
//	<prefix>:<topic>:lock:<id>  lock token of the active job
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

type RedisStoreOption func(*RedisStore)

// WithPrefix sets the key prefix shared by all topics.
func WithPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithClock replaces the time source used for scheduling.
func WithClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRedisStore constructs a store for topic. The store owns client and
// closes it on Close.
func NewRedisStore(client *redis.Client, topic string, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.prefix = s.prefix + ":" + topic + ":"
	return s
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

func (s *RedisStore) jobKey(id string) string {
	return s.prefix + "job:" + id
}

func (s *RedisStore) nowMS() int64 {
	return s.now().UnixMilli()
}

// Init checks connectivity and loads the scripts.
func (s *RedisStore) Init(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	for _, script := range allScripts {
		if err := script.Load(ctx, s.client).Err(); err != nil {
			return fmt.Errorf("load script: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Add writes the job hash and queues its id in one transaction.
func (s *RedisStore) Add(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	opts, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}

	now := s.now()
	job.ID = uuid.NewString()
	job.CreatedAt = time.UnixMilli(now.UnixMilli())
	job.AttemptsMade = 0
	job.State = StateWaiting
	if job.Options.Delay > 0 {
		job.State = StateDelayed
		job.DelayedUntil = time.UnixMilli(now.Add(job.Options.Delay).UnixMilli())
	}

	fields := map[string]interface{}{
		"payload":        payload,
		"opts":           opts,
		"attemptsMade":   0,
		"stalledCounter": 0,
		"state":          string(job.State),
		"timestamp":      job.CreatedAt.UnixMilli(),
		"delayUntil":     0,
	}

	pipe := s.client.TxPipeline()
	switch {
	case job.State == StateDelayed:
		fields["delayUntil"] = job.DelayedUntil.UnixMilli()
		pipe.HSet(ctx, s.jobKey(job.ID), fields)
		pipe.ZAdd(ctx, s.key("delayed"), redis.Z{Score: float64(job.DelayedUntil.UnixMilli()), Member: job.ID})
	case job.Options.Priority == PriorityHigh:
		pipe.HSet(ctx, s.jobKey(job.ID), fields)
		pipe.RPush(ctx, s.key("wait"), job.ID)
	default:
		pipe.HSet(ctx, s.jobKey(job.ID), fields)
		pipe.LPush(ctx, s.key("wait"), job.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add job: %w", err)
	}
	return nil
}

func (s *RedisStore) Claim(ctx context.Context, token string, lockTTL time.Duration) (*Job, error) {
	id, err := claimScript.Run(ctx, s.client,
		[]string{s.key("wait"), s.key("active"), s.key("paused")},
		s.prefix, token, lockTTL.Milliseconds(), s.nowMS(),
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return s.Job(ctx, id)
}

func (s *RedisStore) ExtendLock(ctx context.Context, jobID string, token string, lockTTL time.Duration) error {
	ok, err := extendLockScript.Run(ctx, s.client,
		[]string{s.prefix + "lock:" + jobID},
		token, lockTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("extend lock: %w", err)
	}
	if ok == 0 {
		return ErrLockLost
	}
	return nil
}

func (s *RedisStore) Complete(ctx context.Context, job *Job, token string, result *Result) error {
	value, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	now := s.nowMS()
	attempts, err := completeScript.Run(ctx, s.client,
		[]string{s.key("active"), s.key("completed")},
		s.prefix, job.ID, token, now, value, job.Options.RetainCompleted,
	).Int()
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if attempts < 0 {
		return ErrLockLost
	}

	job.AttemptsMade = attempts
	job.State = StateCompleted
	job.FinishedAt = time.UnixMilli(now)
	job.Result = result
	return nil
}

func (s *RedisStore) Fail(ctx context.Context, job *Job, token string, reason string, retryDelay time.Duration) (int, error) {
	now := s.nowMS()
	mode := "retry"
	due := int64(0)
	if retryDelay < 0 {
		mode = "fail"
	} else if retryDelay > 0 {
		due = now + retryDelay.Milliseconds()
	}

	attempts, err := failScript.Run(ctx, s.client,
		[]string{s.key("active"), s.key("wait"), s.key("delayed"), s.key("failed")},
		s.prefix, job.ID, token, now, reason, mode, due, job.Options.RetainFailed,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("fail job: %w", err)
	}
	if attempts < 0 {
		return 0, ErrLockLost
	}

	job.AttemptsMade = attempts
	job.FailedReason = reason
	switch {
	case mode == "fail":
		job.State = StateFailed
		job.FinishedAt = time.UnixMilli(now)
	case due > 0:
		job.State = StateDelayed
		job.DelayedUntil = time.UnixMilli(due)
	default:
		job.State = StateWaiting
	}
	return attempts, nil
}

// PromoteDelayed moves delayed jobs whose due time has passed to waiting.
func (s *RedisStore) PromoteDelayed(ctx context.Context, limit int64) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	n, err := promoteScript.Run(ctx, s.client,
		[]string{s.key("delayed"), s.key("wait")},
		s.prefix, s.nowMS(), limit,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("promote delayed jobs: %w", err)
	}
	return n, nil
}

// RecoverStalled moves active jobs whose lock expired back to waiting.
func (s *RedisStore) RecoverStalled(ctx context.Context) ([]string, error) {
	ids, err := stalledScript.Run(ctx, s.client,
		[]string{s.key("active"), s.key("wait")},
		s.prefix,
	).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("recover stalled jobs: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	pipe := s.client.TxPipeline()
	waiting := pipe.LLen(ctx, s.key("wait"))
	active := pipe.LLen(ctx, s.key("active"))
	completed := pipe.LLen(ctx, s.key("completed"))
	failed := pipe.LLen(ctx, s.key("failed"))
	delayed := pipe.ZCard(ctx, s.key("delayed"))
	paused := pipe.Exists(ctx, s.key("paused"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("read stats: %w", err)
	}

	return Stats{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
		Paused:    paused.Val() == 1,
	}, nil
}

// CleanFailed deletes every failed job and returns how many were removed.
func (s *RedisStore) CleanFailed(ctx context.Context) (int, error) {
	n, err := cleanFailedScript.Run(ctx, s.client, []string{s.key("failed")}, s.prefix).Int()
	if err != nil {
		return 0, fmt.Errorf("clean failed jobs: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Pause(ctx context.Context) error {
	if err := s.client.Set(ctx, s.key("paused"), 1, 0).Err(); err != nil {
		return fmt.Errorf("pause queue: %w", err)
	}
	return nil
}

func (s *RedisStore) Resume(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key("paused")).Err(); err != nil {
		return fmt.Errorf("resume queue: %w", err)
	}
	return nil
}

func (s *RedisStore) Job(ctx context.Context, id string) (*Job, error) {
	fields, err := s.client.HGetAll(ctx, s.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("read job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}
	return decodeJob(id, fields)
}

// Failed lists retained failed jobs, newest first.
func (s *RedisStore) Failed(ctx context.Context, offset int64, limit int64) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := s.client.LRange(ctx, s.key("failed"), offset, offset+limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.jobKey(id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("read failed jobs: %w", err)
		}
	}

	jobs := make([]*Job, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		job, err := decodeJob(id, fields)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func decodeJob(id string, fields map[string]string) (*Job, error) {
	job := &Job{
		ID:           id,
		State:        State(fields["state"]),
		FailedReason: fields["failedReason"],
		AttemptsMade: atoi(fields["attemptsMade"]),
		StalledCount: atoi(fields["stalledCounter"]),
		CreatedAt:    msTime(fields["timestamp"]),
		ProcessedAt:  msTime(fields["processedOn"]),
		FinishedAt:   msTime(fields["finishedOn"]),
		DelayedUntil: msTime(fields["delayUntil"]),
	}
	if err := json.Unmarshal([]byte(fields["payload"]), &job.Payload); err != nil {
		return nil, fmt.Errorf("decode payload of job %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(fields["opts"]), &job.Options); err != nil {
		return nil, fmt.Errorf("decode options of job %s: %w", id, err)
	}
	if raw := fields["returnvalue"]; raw != "" {
		var result Result
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return nil, fmt.Errorf("decode result of job %s: %w", id, err)
		}
		job.Result = &result
	}
	return job, nil
}

func atoi(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}

func msTime(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
