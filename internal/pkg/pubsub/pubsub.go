package pubsub

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/rotisserie/eris"
)

const (
	ChannelJobProgress = "lease_job_progress"
)

// JobProgress 任务进度消息
type JobProgress struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Step     string `json:"step"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// 进度阶段常量
const (
	StepClaimed     = "claimed"
	StepExtracting  = "extracting"
	StepAnalyzing   = "analyzing"
	StepSummarizing = "summarizing"
	StepCompleted   = "completed"
	StepFailed      = "failed"
	StepCancelled   = "cancelled"
)

// 阶段对应的进度百分比
var StepProgress = map[string]int{
	StepClaimed:     5,
	StepExtracting:  25,
	StepAnalyzing:   60,
	StepSummarizing: 80,
	StepCompleted:   100,
}

// 阶段对应的消息
var StepMessages = map[string]string{
	StepClaimed:     "Processing document...",
	StepExtracting:  "Extracting text from document",
	StepAnalyzing:   "Analysing question against lease clauses",
	StepSummarizing: "Summarising key lease terms",
	StepCompleted:   "Processing complete",
	StepFailed:      "Processing failed",
	StepCancelled:   "Processing cancelled",
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Fill 自动填充进度和消息
func (m *JobProgress) Fill() {
	m.Type = "job_progress"
	if m.Progress == 0 && m.Step != "" {
		if progress, ok := StepProgress[m.Step]; ok {
			m.Progress = progress
		}
	}
	if m.Message == "" && m.Step != "" {
		if message, ok := StepMessages[m.Step]; ok {
			m.Message = message
		}
	}
}

// PublishProgress 发布进度消息
func (p *Publisher) PublishProgress(ctx context.Context, msg *JobProgress) error {
	msg.Fill()

	data, err := json.Marshal(msg)
	if err != nil {
		return eris.Wrap(err, "pubsub: marshal progress message")
	}

	if err := p.client.Publish(ctx, ChannelJobProgress, data).Err(); err != nil {
		return eris.Wrap(err, "pubsub: publish")
	}
	return nil
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅进度消息，直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*JobProgress)) error {
	pubsub := s.client.Subscribe(ctx, ChannelJobProgress)
	defer pubsub.Close()

	// 等待订阅确认，之后发布的消息不会丢
	if _, err := pubsub.Receive(ctx); err != nil {
		return eris.Wrap(err, "pubsub: subscribe")
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var progress JobProgress
			if err := json.Unmarshal([]byte(msg.Payload), &progress); err != nil {
				continue // 忽略解析错误
			}

			handler(&progress)
		}
	}
}
