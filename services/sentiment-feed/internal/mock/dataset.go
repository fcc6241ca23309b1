// services/sentiment-feed/internal/mock/dataset.go

// Package mock — фиксированные наборы данных для режима fallback
// и генератор случайных событий для локального источника.
package mock

import (
	"time"

	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/channel"
)

// Dataset возвращает фиксированный набор событий канала, от нового к старому.
// Метки времени отсчитываются назад от now.
func Dataset(ch channel.Name, now time.Time) []channel.Event {
	switch ch {
	case channel.Sentiment:
		return sentiments(now)
	case channel.Trends:
		return trends(now)
	case channel.Transactions:
		return transactions(now)
	}
	return nil
}

func sentiments(now time.Time) []channel.Event {
	row := func(id, asset, source string, score float64, label, content string, confidence float64, ago time.Duration) channel.Event {
		return &channel.SentimentEvent{
			ID: channel.ID(id), Cryptocurrency: asset, Source: source,
			Score: score, Label: label, Content: content, Confidence: confidence,
			Timestamp: now.Add(-ago),
		}
	}
	return []channel.Event{
		row("s1", "Bitcoin", "reddit", 75.2, "positive", "", 0, 0),
		row("s2", "Ethereum", "twitter", -32.5, "negative", "", 0, time.Minute),
		row("sent1", "Bitcoin", "reddit", 78.5, "positive",
			"Bitcoin looking strong today, breaking resistance levels!", 0.89, 15*time.Minute),
		row("sent2", "Ethereum", "twitter", -42.3, "negative",
			"Ethereum gas fees are too high, considering alternatives", 0.76, 30*time.Minute),
		row("sent3", "Bitcoin", "news", 85.7, "positive",
			"Major institutional investor announces $1B Bitcoin purchase", 0.92, 45*time.Minute),
		row("sent4", "Solana", "forexfactory", 62.1, "positive",
			"Solana ecosystem growing rapidly with new DeFi projects", 0.81, time.Hour),
		row("sent5", "Cardano", "reddit", 12.4, "neutral",
			"Cardano development continues, but adoption remains slow", 0.65, 75*time.Minute),
	}
}

func trends(now time.Time) []channel.Event {
	return []channel.Event{
		&channel.TrendEvent{
			ID: "t1", Cryptocurrency: "Bitcoin", Prediction: "bullish", Confidence: 0.85,
			Timeframe: "24h", CreatedAt: now, ValidUntil: now.Add(24 * time.Hour),
		},
	}
}

func transactions(now time.Time) []channel.Event {
	return []channel.Event{
		&channel.TransactionEvent{
			ID: "tx1", Cryptocurrency: "Bitcoin", Amount: 245.89, ValueUSD: 14324567,
			FromAddress: "0x1a2b3c4d", ToAddress: "0x5e6f7g8h",
			TransactionHash: "0xabcdef1234567890", Timestamp: now,
		},
	}
}
