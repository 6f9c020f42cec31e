package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNewMessageEncodesPayload(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msg, err := newMessage("1", "notification", map[string]string{"text": "hi"}, now)
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	v, err := Decode[map[string]string](msg.Payload)
	if err != nil || (*v)["text"] != "hi" {
		t.Fatalf("decode: %v %v", v, err)
	}

	raw, err := newMessage("2", "cmd", []byte(`{"a":1}`), now)
	if err != nil || string(raw.Payload) != `{"a":1}` {
		t.Fatalf("raw payload not kept: %s %v", raw.Payload, err)
	}
	if _, err := newMessage("3", "cmd", []byte(`not json`), now); err == nil {
		t.Fatalf("expected invalid json rejected")
	}

	b, _ := json.Marshal(msg)
	var back Message
	if err := json.Unmarshal(b, &back); err != nil || back.Type != "notification" {
		t.Fatalf("envelope round trip failed: %v", err)
	}
}

func TestProcessRunsRegisteredJob(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	q := NewRedisQueue(client, Config{KeyPrefix: "test"}, nil)

	var got string
	q.RegisterJob(JobFunc{MsgType: "cmd", Fn: func(_ context.Context, p []byte) error {
		got = string(p)
		return nil
	}})
	q.process(context.Background(), Message{ID: "1", Type: "cmd", Payload: []byte(`{"x":1}`)})
	if got != `{"x":1}` {
		t.Fatalf("job not run, got %q", got)
	}
	if q.queueKey() != "test:messages" || q.retryKey() != "test:retry" || q.deadLetterKey() != "test:dlq" {
		t.Fatalf("unexpected keys")
	}
}

func TestStartFailsWithoutRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer client.Close()
	q := NewRedisQueue(client, Config{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Start(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
}
