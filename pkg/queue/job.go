package queue

import "context"

// Job handles every message of one type.
type Job interface {
	Type() string
	Handle(ctx context.Context, payload []byte) error
}

// JobFunc adapts a function to Job.
type JobFunc struct {
	MsgType string
	Fn      func(ctx context.Context, payload []byte) error
}

func (j JobFunc) Type() string { return j.MsgType }

func (j JobFunc) Handle(ctx context.Context, payload []byte) error { return j.Fn(ctx, payload) }
