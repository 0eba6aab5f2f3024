package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rotisserie/eris"
)

const (
	MinPriority = 0
	MaxPriority = 100

	// priorityWeight 大于任意毫秒时间戳，保证 priority 是第一排序键
	priorityWeight = 1e13

	// popPollStep 队列为空时两次 ZPOPMIN 之间的最长间隔
	popPollStep = 200 * time.Millisecond
)

// popScript 原子地取出 score 最小的 job_id 并删除其消息体
var popScript = redis.NewScript(`
local popped = redis.call('ZPOPMIN', KEYS[1])
if #popped == 0 then
  return false
end
local payload = redis.call('HGET', KEYS[2], popped[1])
redis.call('HDEL', KEYS[2], popped[1])
return {popped[1], payload}
`)

// Queue 基于 Redis ZSET 的优先级队列，score 越小越先出队。
// ZSET 成员是 job_id，消息体存放在 <queue>:payload 哈希中
type Queue struct {
	client    *redis.Client
	queueName string
}

type JobMessage struct {
	JobID     string    `json:"job_id"`
	UserID    string    `json:"user_id"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

func (q *Queue) payloadKey() string {
	return q.queueName + ":payload"
}

// Score priority ASC, created_at ASC
func Score(priority int, createdAt time.Time) float64 {
	return float64(priority)*priorityWeight + float64(createdAt.UnixMilli())
}

// Push 将任务加入队列，同一任务重复加入只保留一条（以最后一次为准）
func (q *Queue) Push(ctx context.Context, msg *JobMessage) error {
	if msg.Priority < MinPriority || msg.Priority > MaxPriority {
		return eris.Errorf("queue: priority %d out of range", msg.Priority)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return eris.Wrap(err, "queue: marshal message")
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.payloadKey(), msg.JobID, data)
		pipe.ZAdd(ctx, q.queueName, &redis.Z{
			Score:  Score(msg.Priority, msg.CreatedAt),
			Member: msg.JobID,
		})
		return nil
	})
	if err != nil {
		return eris.Wrap(err, "queue: push")
	}
	return nil
}

// Pop 取出优先级最高的任务，队列为空时轮询等待至多 timeout，超时返回 nil, nil
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*JobMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		msg, err := q.TryPop(ctx)
		if err != nil || msg != nil {
			return msg, err
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil
		}
		if wait > popPollStep {
			wait = popPollStep
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// TryPop 非阻塞出队，队列为空返回 nil, nil
func (q *Queue) TryPop(ctx context.Context) (*JobMessage, error) {
	result, err := popScript.Run(ctx, q.client, []string{q.queueName, q.payloadKey()}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "queue: pop")
	}

	fields, ok := result.([]interface{})
	if !ok || len(fields) == 0 {
		return nil, eris.Errorf("queue: unexpected pop result %T", result)
	}
	jobID, ok := fields[0].(string)
	if !ok {
		return nil, eris.Errorf("queue: unexpected member type %T", fields[0])
	}

	// 消息体丢失时仍返回 job_id，归属由数据库条件更新决定
	payload, _ := fieldString(fields, 1)
	if payload == "" {
		return &JobMessage{JobID: jobID}, nil
	}
	var msg JobMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return nil, eris.Wrap(err, "queue: unmarshal message")
	}
	msg.JobID = jobID
	return &msg, nil
}

func fieldString(fields []interface{}, i int) (string, bool) {
	if i >= len(fields) {
		return "", false
	}
	s, ok := fields[i].(string)
	return s, ok
}

// Remove 删除某个任务的消息（取消时调用），不存在不报错
func (q *Queue) Remove(ctx context.Context, jobID string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.queueName, jobID)
		pipe.HDel(ctx, q.payloadKey(), jobID)
		return nil
	})
	if err != nil {
		return eris.Wrap(err, "queue: remove")
	}
	return nil
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.queueName).Result()
	if err != nil {
		return 0, eris.Wrap(err, "queue: zcard")
	}
	return n, nil
}
