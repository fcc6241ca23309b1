// services/sentiment-feed/internal/channel/channel_test.go
package channel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	cases := []struct {
		in      string
		want    Name
		wantErr bool
	}{
		{"sentiment", Sentiment, false},
		{" Trends ", Trends, false},
		{"trend", Trends, false},
		{"TRANSACTION", Transactions, false},
		{"prices", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := Lookup(c.in)
			if c.wantErr {
				require.ErrorIs(t, err, ErrUnknownChannel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestKnown_IsExact(t *testing.T) {
	assert.True(t, Known(Sentiment))
	assert.False(t, Known("trend"), "wire names are not aliased")
	assert.Equal(t, []Name{Sentiment, Trends, Transactions}, All())
}

func TestDecode_Sentiment(t *testing.T) {
	raw := []byte(`{"id":"s1","cryptocurrency":"Bitcoin","source":"reddit","sentiment_score":75.2,
		"sentiment_label":"Positive","timestamp":"2025-05-01T10:00:00.000Z"}`)
	ev, err := Decode(Sentiment, raw)
	require.NoError(t, err)

	s := ev.(*SentimentEvent)
	assert.Equal(t, "s1", s.EventID())
	assert.Equal(t, "positive", s.Label)
	assert.Equal(t, time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC), s.OccurredAt().UTC())

	v, ok := ev.Field("cryptocurrency")
	assert.True(t, ok)
	assert.Equal(t, "Bitcoin", v)
	_, ok = ev.Field("amount")
	assert.False(t, ok)
}

func TestDecode_NumericIDAndDerivedLabel(t *testing.T) {
	ev, err := Decode(Sentiment, []byte(`{"id":42,"cryptocurrency":"Cardano","source":"reddit","sentiment_score":12.4}`))
	require.NoError(t, err)
	assert.Equal(t, "42", ev.EventID())
	assert.Equal(t, "neutral", ev.(*SentimentEvent).Label)
}

func TestDecode_Invalid(t *testing.T) {
	cases := []struct {
		name string
		ch   Name
		raw  string
	}{
		{"emptyID", Sentiment, `{"cryptocurrency":"Bitcoin","sentiment_score":1}`},
		{"scoreRange", Sentiment, `{"id":"x","sentiment_score":150}`},
		{"badLabel", Sentiment, `{"id":"x","sentiment_label":"euphoric"}`},
		{"confidenceRange", Trends, `{"id":"t","confidence":1.5}`},
		{"negativeAmount", Transactions, `{"id":"tx","amount":-1}`},
		{"notJSON", Trends, `{`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Decode(c.ch, []byte(c.raw))
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}
}

func TestDecode_UnknownChannel(t *testing.T) {
	_, err := Decode("prices", []byte(`{}`))
	assert.True(t, errors.Is(err, ErrUnknownChannel))
}

func TestDecodeList_SkipsInvalidKeepsOrder(t *testing.T) {
	raw := []byte(`[
		{"id":"t1","cryptocurrency":"Bitcoin","prediction":"bullish","confidence":0.85,"timeframe":"24h"},
		{"id":"","prediction":"bearish"},
		{"id":"t2","cryptocurrency":"Ethereum","prediction":"bearish","confidence":0.6,"timeframe":"7d"}
	]`)
	events, skipped, err := DecodeList(Trends, raw)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, events, 2)
	assert.Equal(t, "t1", events[0].EventID())
	assert.Equal(t, "t2", events[1].EventID())
}

func TestDecodeList_NotAList(t *testing.T) {
	_, _, err := DecodeList(Transactions, []byte(`{"id":"tx1"}`))
	assert.ErrorIs(t, err, ErrInvalidEvent)
}
