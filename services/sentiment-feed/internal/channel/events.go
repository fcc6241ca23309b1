// services/sentiment-feed/internal/channel/events.go
package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ID принимает и строковые, и числовые идентификаторы источника.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

var errEmptyID = errors.New("empty id")

// -----------------------------------------------------------------------------
// sentiment
// -----------------------------------------------------------------------------

// SentimentEvent — оценка настроения по одному упоминанию актива.
type SentimentEvent struct {
	ID             ID        `json:"id"`
	Cryptocurrency string    `json:"cryptocurrency"`
	Source         string    `json:"source"`
	Score          float64   `json:"sentiment_score"` // −100..100
	Label          string    `json:"sentiment_label"` // positive | neutral | negative
	Content        string    `json:"content,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

func (e *SentimentEvent) EventID() string       { return string(e.ID) }
func (e *SentimentEvent) OccurredAt() time.Time { return e.Timestamp }

func (e *SentimentEvent) Field(key string) (string, bool) {
	switch key {
	case "cryptocurrency":
		return e.Cryptocurrency, true
	case "source":
		return e.Source, true
	case "sentiment_label":
		return e.Label, true
	}
	return "", false
}

func (e *SentimentEvent) Validate() error {
	if e.ID == "" {
		return errEmptyID
	}
	if e.Score < -100 || e.Score > 100 {
		return fmt.Errorf("sentiment_score %v out of [-100,100]", e.Score)
	}
	e.Label = strings.ToLower(e.Label)
	switch e.Label {
	case "positive", "neutral", "negative":
	case "":
		e.Label = LabelFor(e.Score)
	default:
		return fmt.Errorf("sentiment_label %q", e.Label)
	}
	return nil
}

// LabelFor выводит метку по оценке, если источник её не прислал.
func LabelFor(score float64) string {
	switch {
	case score > 25:
		return "positive"
	case score < -25:
		return "negative"
	default:
		return "neutral"
	}
}

// -----------------------------------------------------------------------------
// trends
// -----------------------------------------------------------------------------

// TrendEvent — прогноз движения актива на горизонте Timeframe.
type TrendEvent struct {
	ID             ID        `json:"id"`
	Cryptocurrency string    `json:"cryptocurrency"`
	Prediction     string    `json:"prediction"`
	Confidence     float64   `json:"confidence"` // 0..1
	Timeframe      string    `json:"timeframe"`
	CreatedAt      time.Time `json:"created_at"`
	ValidUntil     time.Time `json:"valid_until"`
}

func (e *TrendEvent) EventID() string       { return string(e.ID) }
func (e *TrendEvent) OccurredAt() time.Time { return e.CreatedAt }

func (e *TrendEvent) Field(key string) (string, bool) {
	switch key {
	case "cryptocurrency":
		return e.Cryptocurrency, true
	case "prediction":
		return e.Prediction, true
	case "timeframe":
		return e.Timeframe, true
	}
	return "", false
}

func (e *TrendEvent) Validate() error {
	if e.ID == "" {
		return errEmptyID
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("confidence %v out of [0,1]", e.Confidence)
	}
	return nil
}

// -----------------------------------------------------------------------------
// transactions
// -----------------------------------------------------------------------------

// TransactionEvent — крупная on-chain транзакция.
type TransactionEvent struct {
	ID              ID        `json:"id"`
	Cryptocurrency  string    `json:"cryptocurrency"`
	Amount          float64   `json:"amount"`
	ValueUSD        float64   `json:"value_usd"`
	FromAddress     string    `json:"from_address"`
	ToAddress       string    `json:"to_address"`
	TransactionHash string    `json:"transaction_hash"`
	Timestamp       time.Time `json:"timestamp"`
}

func (e *TransactionEvent) EventID() string       { return string(e.ID) }
func (e *TransactionEvent) OccurredAt() time.Time { return e.Timestamp }

func (e *TransactionEvent) Field(key string) (string, bool) {
	switch key {
	case "cryptocurrency":
		return e.Cryptocurrency, true
	case "from_address":
		return e.FromAddress, true
	case "to_address":
		return e.ToAddress, true
	case "transaction_hash":
		return e.TransactionHash, true
	}
	return "", false
}

func (e *TransactionEvent) Validate() error {
	if e.ID == "" {
		return errEmptyID
	}
	if e.Amount < 0 {
		return fmt.Errorf("amount %v is negative", e.Amount)
	}
	return nil
}
