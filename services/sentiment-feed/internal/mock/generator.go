// services/sentiment-feed/internal/mock/generator.go
package mock

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/channel"
)

var (
	assets      = []string{"Bitcoin", "Ethereum", "Solana", "Cardano"}
	sources     = []string{"reddit", "twitter", "news", "forexfactory"}
	predictions = []string{"bullish", "bearish", "neutral"}
	timeframes  = []string{"1h", "24h", "7d"}
)

// Generator выдаёт правдоподобные случайные события.
type Generator struct {
	clock clockwork.Clock

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator — seed фиксирует последовательность (для тестов).
func NewGenerator(clock clockwork.Clock, seed int64) *Generator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Generator{clock: clock, rnd: rand.New(rand.NewSource(seed))}
}

// Next создаёт новое событие канала ch с уникальным id.
func (g *Generator) Next(ch channel.Name) channel.Event {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now().UTC()
	id := channel.ID(uuid.NewString())
	asset := pick(g.rnd, assets)

	switch ch {
	case channel.Trends:
		tf := pick(g.rnd, timeframes)
		return &channel.TrendEvent{
			ID: id, Cryptocurrency: asset,
			Prediction: pick(g.rnd, predictions),
			Confidence: round(0.5+g.rnd.Float64()*0.5, 2),
			Timeframe:  tf,
			CreatedAt:  now,
			ValidUntil: now.Add(timeframeDuration(tf)),
		}
	case channel.Transactions:
		amount := round(1+g.rnd.Float64()*500, 2)
		return &channel.TransactionEvent{
			ID: id, Cryptocurrency: asset,
			Amount:          amount,
			ValueUSD:        round(amount*(1000+g.rnd.Float64()*60000), 2),
			FromAddress:     address(g.rnd),
			ToAddress:       address(g.rnd),
			TransactionHash: fmt.Sprintf("0x%016x", g.rnd.Uint64()),
			Timestamp:       now,
		}
	default:
		score := round(g.rnd.Float64()*200-100, 1)
		return &channel.SentimentEvent{
			ID: id, Cryptocurrency: asset,
			Source:     pick(g.rnd, sources),
			Score:      score,
			Label:      channel.LabelFor(score),
			Confidence: round(0.5+g.rnd.Float64()*0.5, 2),
			Timestamp:  now,
		}
	}
}

// Run вызывает emit для каждого канала каждые interval, пока ctx жив.
func (g *Generator) Run(ctx context.Context, interval time.Duration, channels []channel.Name, emit func(channel.Name, channel.Event)) {
	ticker := g.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			for _, ch := range channels {
				emit(ch, g.Next(ch))
			}
		}
	}
}

func pick(r *rand.Rand, from []string) string { return from[r.Intn(len(from))] }

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func address(r *rand.Rand) string { return fmt.Sprintf("0x%08x", r.Uint32()) }

func timeframeDuration(tf string) time.Duration {
	switch tf {
	case "1h":
		return time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
