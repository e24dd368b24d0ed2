package repository

import (
	"context"
	"encoding/json"
	"time"

	"proctora_backend/internal/model"

	"github.com/go-redis/redis/v8"
)

// ViolationRepository 违规计数器，存于 Redis 并带 TTL。
// 计数走 INCR、事件走 RPUSH，两者本身都是原子操作，
// 毫秒级并发到达的两次违规不会互相丢失。
type ViolationRepository struct {
	Redis *redis.Client
}

func NewViolationRepository(rdb *redis.Client) *ViolationRepository {
	return &ViolationRepository{Redis: rdb}
}

func countKey(attemptID string) string {
	return "violations:" + attemptID + ":count"
}

func eventsKey(attemptID string) string {
	return "violations:" + attemptID + ":events"
}

// Record 登记一次违规并把两个键都续期到 ttl。
// 每次写入都以考试剩余时长重新设置过期时间，记录不会比
// 它看守的考试存活更久，崩溃/弃考的数据自动清理。
func (r *ViolationRepository) Record(ctx context.Context, attemptID string, vtype model.ViolationType, ttl time.Duration) (*model.ViolationRecord, error) {
	event := model.ViolationEvent{
		Type:      vtype,
		Timestamp: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	pipe := r.Redis.TxPipeline()
	incr := pipe.Incr(ctx, countKey(attemptID))
	pipe.RPush(ctx, eventsKey(attemptID), payload)
	pipe.Expire(ctx, countKey(attemptID), ttl)
	pipe.Expire(ctx, eventsKey(attemptID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	record, err := r.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	// Get 与 INCR 之间可能有并发写入，count 以本次 INCR 的返回为准
	record.Count = incr.Val()
	return record, nil
}

// Get 返回当前违规快照。键不存在是正常情况（还没有违规），
// 返回零值记录而不是错误。
func (r *ViolationRepository) Get(ctx context.Context, attemptID string) (*model.ViolationRecord, error) {
	count, err := r.Redis.Get(ctx, countKey(attemptID)).Int64()
	if err == redis.Nil {
		return &model.ViolationRecord{Violations: []model.ViolationEvent{}}, nil
	}
	if err != nil {
		return nil, err
	}

	raw, err := r.Redis.LRange(ctx, eventsKey(attemptID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	events := make([]model.ViolationEvent, 0, len(raw))
	for _, item := range raw {
		var event model.ViolationEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue
		}
		events = append(events, event)
	}

	return &model.ViolationRecord{Count: count, Violations: events}, nil
}

// Reset 删除违规记录，仅供管理员人工豁免使用
func (r *ViolationRepository) Reset(ctx context.Context, attemptID string) error {
	return r.Redis.Del(ctx, countKey(attemptID), eventsKey(attemptID)).Err()
}
