package commands

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/our-edu/go-sqs-consumer/internal/config"
	"github.com/our-edu/go-sqs-consumer/internal/contracts"
)

// stubQueue serves a fixed set of messages once, then empty receives
type stubQueue struct {
	mu       sync.Mutex
	messages []contracts.Message
	requests []contracts.ReceiveRequest
	deleted  []string
	reset    []string
	depth    int64
}

func (q *stubQueue) ReceiveMessages(ctx context.Context, req contracts.ReceiveRequest) ([]contracts.Message, error) {
	q.mu.Lock()
	q.requests = append(q.requests, req)
	if len(q.messages) > 0 {
		n := min(req.MaxMessages, len(q.messages))
		batch := q.messages[:n]
		q.messages = q.messages[n:]
		q.mu.Unlock()
		return batch, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

func (q *stubQueue) DeleteMessage(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

func (q *stubQueue) ChangeVisibilityTimeout(ctx context.Context, receiptHandle string, timeout int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reset = append(q.reset, receiptHandle)
	return nil
}

func (q *stubQueue) GetQueueDepth(ctx context.Context) (int64, error) {
	return q.depth, nil
}

func (q *stubQueue) counts() (deleted, reset int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.deleted), len(q.reset)
}

// receiveOnly lacks GetQueueDepth
type receiveOnly struct {
	contracts.QueueClient
}

func useQueue(t *testing.T, client contracts.QueueClient) {
	t.Helper()
	previous := openQueue
	openQueue = func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*queueHandle, error) {
		return &queueHandle{client: client, url: "https://sqs.local/000000000000/dev-orders"}, nil
	}
	t.Cleanup(func() { openQueue = previous })
}

func testMessages(n int) []contracts.Message {
	messages := make([]contracts.Message, n)
	for i := range messages {
		id := string(rune('a' + i))
		messages[i] = contracts.Message{
			MessageID:     "msg-" + id,
			ReceiptHandle: "rh-" + id,
			Body:          `{"n":"` + id + `"}`,
			Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
		}
	}
	return messages
}

func TestAddCommands(t *testing.T) {
	root := &cobra.Command{Use: "root"}
	AddCommands(root, config.DefaultConfig(), zerolog.Nop())

	want := map[string]bool{"consume": false, "status": false, "test-connection": false, "test-receive": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected command %q to be registered", name)
		}
	}
}

func TestConsumeFlagDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Consumer.BatchSize = 8
	cfg.Metrics.Prometheus.Addr = ":9999"

	cmd := newConsumeCmd(cfg, zerolog.Nop())

	if got := cmd.Flags().Lookup("batch").DefValue; got != "8" {
		t.Errorf("expected batch default '8', got '%s'", got)
	}
	if got := cmd.Flags().Lookup("metrics-addr").DefValue; got != ":9999" {
		t.Errorf("expected metrics-addr default ':9999', got '%s'", got)
	}
}

func TestWithQueue(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SQS.QueueURL = "https://sqs/configured"

	if got := withQueue(cfg, nil); got != cfg {
		t.Error("without an argument the config should be returned as is")
	}

	override := withQueue(cfg, []string{"payments"})
	if override.SQS.QueueURL != "" {
		t.Errorf("queue argument should clear the configured URL, got '%s'", override.SQS.QueueURL)
	}
	if override.SQS.QueueName != "payments" || override.RabbitMQ.Queue != "payments" {
		t.Errorf("unexpected override %+v %+v", override.SQS, override.RabbitMQ)
	}
	if cfg.SQS.QueueURL != "https://sqs/configured" {
		t.Error("override must not mutate the caller's config")
	}
}

func TestRefreshCacheFlag(t *testing.T) {
	cfg := config.DefaultConfig()
	var seen *config.Config
	previous := openQueue
	openQueue = func(ctx context.Context, c *config.Config, logger zerolog.Logger) (*queueHandle, error) {
		seen = c
		return &queueHandle{client: &stubQueue{}, url: "https://sqs.local/000000000000/dev-orders"}, nil
	}
	t.Cleanup(func() { openQueue = previous })

	cmd := newStatusCmd(cfg, zerolog.Nop())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"orders", "--refresh-cache"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if seen == nil || !seen.SQS.RefreshCache {
		t.Fatal("expected --refresh-cache to reach queue resolution")
	}
	if cfg.SQS.RefreshCache {
		t.Error("flag must not mutate the caller's config")
	}
	if withRefresh(cfg, false) != cfg {
		t.Error("without the flag the config should be returned as is")
	}
}

func TestOpenQueueUnsupportedDriver(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Driver = "kafka"

	_, err := openQueue(context.Background(), cfg, zerolog.Nop())
	if err == nil || !strings.Contains(err.Error(), "unsupported driver") {
		t.Errorf("expected unsupported driver error, got %v", err)
	}
}

func TestRunStatus(t *testing.T) {
	useQueue(t, &stubQueue{depth: 42})
	var out bytes.Buffer

	if err := runStatus(context.Background(), &out, config.DefaultConfig(), zerolog.Nop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Messages in Queue: 42") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestRunStatusDepthUnsupported(t *testing.T) {
	useQueue(t, receiveOnly{&stubQueue{}})

	err := runStatus(context.Background(), &bytes.Buffer{}, config.DefaultConfig(), zerolog.Nop())
	if err == nil {
		t.Fatal("expected an error for a client without depth support")
	}
}

func TestRunTestReceive(t *testing.T) {
	queue := &stubQueue{messages: testMessages(2)}
	useQueue(t, queue)
	var out bytes.Buffer

	if err := runTestReceive(context.Background(), &out, config.DefaultConfig(), zerolog.Nop(), 10, 30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(out.String(), "Message ID: msg-a") || !strings.Contains(out.String(), "Message ID: msg-b") {
		t.Errorf("expected both messages in output:\n%s", out.String())
	}
	if queue.requests[0].WaitTimeSeconds != 20 {
		t.Errorf("wait time should be clamped to 20, got %d", queue.requests[0].WaitTimeSeconds)
	}
	if deleted, reset := queue.counts(); deleted != 0 || reset != 0 {
		t.Errorf("test-receive must not ack, got %d deletes and %d resets", deleted, reset)
	}
}

func TestRunTestReceiveEmpty(t *testing.T) {
	useQueue(t, &stubQueue{})
	var out bytes.Buffer

	if err := runTestReceive(context.Background(), &out, config.DefaultConfig(), zerolog.Nop(), 1, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "No messages received") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestRunTestReceiveInvalidMax(t *testing.T) {
	for _, n := range []int{0, 11} {
		if err := runTestReceive(context.Background(), &bytes.Buffer{}, config.DefaultConfig(), zerolog.Nop(), n, 0); err == nil {
			t.Errorf("expected an error for --max %d", n)
		}
	}
}

func TestLogHandler(t *testing.T) {
	tests := []struct {
		name    string
		nack    bool
		wantErr error
	}{
		{"ack", false, nil},
		{"nack", true, errRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got error
			calls := 0
			handler := logHandler(zerolog.Nop(), tt.nack)

			err := handler(context.Background(), testMessages(1)[0], func(err error) {
				calls++
				got = err
			})
			if err != nil {
				t.Fatalf("unexpected handler error: %v", err)
			}
			if calls != 1 {
				t.Fatalf("expected exactly one ack, got %d", calls)
			}
			if !errors.Is(got, tt.wantErr) {
				t.Errorf("expected ack(%v), got ack(%v)", tt.wantErr, got)
			}
		})
	}
}

func TestRunConsumer(t *testing.T) {
	queue := &stubQueue{messages: testMessages(3)}
	useQueue(t, queue)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runConsumer(ctx, config.DefaultConfig(), zerolog.Nop(), consumeOptions{
			batchSize:       2,
			gracefulTimeout: time.Second,
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if deleted, _ := queue.counts(); deleted == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for messages to be deleted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not shut down")
	}
}

func TestRunConsumerNack(t *testing.T) {
	queue := &stubQueue{messages: testMessages(1)}
	useQueue(t, queue)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runConsumer(ctx, config.DefaultConfig(), zerolog.Nop(), consumeOptions{
			batchSize: 1,
			nack:      true,
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, reset := queue.counts(); reset == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the message to be returned")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted, _ := queue.counts(); deleted != 0 {
		t.Errorf("nack must not delete, got %d deletes", deleted)
	}
}
