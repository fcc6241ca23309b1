// common/kafka/producer/producer_test.go
package producer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/YaganovValera/analytics-system/common/backoff"
	"github.com/YaganovValera/analytics-system/common/logger"
)

func TestBuildSaramaConfig(t *testing.T) {
	cases := []struct {
		name     string
		cfg      Config
		wantErr  bool
		wantAcks sarama.RequiredAcks
	}{
		{"all", Config{RequiredAcks: "all", Compression: "none"}, false, sarama.WaitForAll},
		{"leader", Config{RequiredAcks: "LEADER", Compression: "gzip"}, false, sarama.WaitForLocal},
		{"badAcks", Config{RequiredAcks: "some", Compression: "none"}, true, 0},
		{"badCompression", Config{RequiredAcks: "all", Compression: "brotli"}, true, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sc, err := buildSaramaConfig(c.cfg)
			if (err != nil) != c.wantErr {
				t.Fatalf("buildSaramaConfig() error = %v; wantErr %v", err, c.wantErr)
			}
			if err == nil && sc.Producer.RequiredAcks != c.wantAcks {
				t.Errorf("RequiredAcks = %v; want %v", sc.Producer.RequiredAcks, c.wantAcks)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	if err := cfg.validate(); err == nil {
		t.Error("expected error without brokers")
	}
	if cfg.RequiredAcks != "all" || cfg.Compression != "none" || cfg.Timeout != 5*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestWrap_PublishSuccess(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"id":"s1"}` {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := Wrap(mp, backoff.Config{MaxRetries: 1}, logger.NewNop())
	if err := p.Publish(context.Background(), "feed.sentiment", []byte("bitcoin"), []byte(`{"id":"s1"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestWrap_PublishRetriesThenFails(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	cfg := backoff.Config{InitialInterval: time.Millisecond, Multiplier: 1, MaxInterval: time.Millisecond, MaxRetries: 1}
	p := Wrap(mp, cfg, logger.NewNop())
	err := p.Publish(context.Background(), "feed.sentiment", nil, []byte("x"))
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected ErrOutOfBrokers, got %v", err)
	}
	_ = p.Close()
}

type fakeMetadata struct {
	err    error
	block  chan struct{}
	topics []string
}

func (f *fakeMetadata) RefreshMetadata(topics ...string) error {
	f.topics = topics
	if f.block != nil {
		<-f.block
	}
	return f.err
}

func (f *fakeMetadata) Close() error { return nil }

func TestPing(t *testing.T) {
	topics := []string{"sentiment-feed.sentiment", "sentiment-feed.trends"}

	t.Run("refreshesOwnTopics", func(t *testing.T) {
		md := &fakeMetadata{}
		p := &kafkaProducer{client: md, topics: topics, logger: logger.NewNop()}
		if err := p.Ping(context.Background()); err != nil {
			t.Fatalf("Ping: %v", err)
		}
		if len(md.topics) != 2 || md.topics[0] != topics[0] {
			t.Errorf("refreshed topics = %v; want %v", md.topics, topics)
		}
	})

	t.Run("brokerError", func(t *testing.T) {
		p := &kafkaProducer{client: &fakeMetadata{err: sarama.ErrOutOfBrokers}, logger: logger.NewNop()}
		if err := p.Ping(context.Background()); !errors.Is(err, sarama.ErrOutOfBrokers) {
			t.Errorf("expected ErrOutOfBrokers, got %v", err)
		}
	})

	t.Run("respectsDeadline", func(t *testing.T) {
		md := &fakeMetadata{block: make(chan struct{})}
		defer close(md.block)
		p := &kafkaProducer{client: md, logger: logger.NewNop()}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := p.Ping(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected DeadlineExceeded, got %v", err)
		}
	})
}
