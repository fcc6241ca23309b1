// services/sentiment-feed/internal/wire/wire.go

// Package wire — JSON-кадры протокола между клиентом и источником данных.
//
//	client → server: {"event":"subscribe","channel":"sentiment","filters":{"cryptocurrency":"Bitcoin"}}
//	server → client: {"event":"initial_data","channel":"sentiment","data":[...]}
//	                 {"event":"new_data","channel":"sentiment","data":{...}}
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Имена событий протокола.
const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventInitialData = "initial_data"
	EventNewData     = "new_data"
)

// ErrMalformed — кадр не разбирается как JSON-объект протокола.
var ErrMalformed = errors.New("wire: malformed frame")

// ClientMessage — кадр от клиента к источнику.
type ClientMessage struct {
	Event   string            `json:"event"`
	Channel string            `json:"channel"`
	Filters map[string]string `json:"filters,omitempty"`
}

// ServerMessage — кадр от источника к клиенту.
type ServerMessage struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// EncodeClient сериализует намерение клиента.
func EncodeClient(m ClientMessage) ([]byte, error) {
	if m.Event != EventSubscribe && m.Event != EventUnsubscribe {
		return nil, fmt.Errorf("wire: unsupported client event %q", m.Event)
	}
	return json.Marshal(m)
}

// DecodeClient разбирает кадр клиента (сторона источника).
func DecodeClient(b []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.Event == "" {
		return m, fmt.Errorf("%w: missing event", ErrMalformed)
	}
	return m, nil
}

// EncodeServer сериализует кадр источника; data маршалится как есть.
func EncodeServer(event, channel string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("wire: encode data: %w", err)
	}
	return json.Marshal(ServerMessage{Event: event, Channel: channel, Data: raw})
}

// DecodeServer разбирает кадр источника (сторона клиента).
func DecodeServer(b []byte) (ServerMessage, error) {
	var m ServerMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.Event == "" {
		return m, fmt.Errorf("%w: missing event", ErrMalformed)
	}
	return m, nil
}
