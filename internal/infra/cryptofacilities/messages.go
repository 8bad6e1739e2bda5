package cryptofacilities

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"orderbook_go/internal/domain"
	"orderbook_go/internal/event"
)

const (
	feedBook         = "book_ui_1"
	feedBookSnapshot = "book_ui_1_snapshot"
)

// errVenue marks an error event sent by the venue itself.
var errVenue = errors.New("venue error")

// request is an outbound subscribe/unsubscribe message.
// {"event":"subscribe","feed":"book_ui_1","product_ids":["PI_XBTUSD"]}
type request struct {
	Event      string   `json:"event"`
	Feed       string   `json:"feed"`
	ProductIDs []string `json:"product_ids"`
}

// wireMessage covers every inbound shape: book snapshots and deltas carry
// feed/product_id/bids/asks, control messages carry event/product_ids.
type wireMessage struct {
	Event      string                  `json:"event"`
	Feed       string                  `json:"feed"`
	ProductID  string                  `json:"product_id"`
	ProductIDs []string                `json:"product_ids"`
	Bids       []domain.RawLevelUpdate `json:"bids"`
	Asks       []domain.RawLevelUpdate `json:"asks"`
	Message    string                  `json:"message"`
}

func encodeRequest(action string, inst domain.Instrument) ([]byte, error) {
	if !inst.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidSymbol, inst)
	}
	return json.Marshal(request{
		Event:      action,
		Feed:       feedBook,
		ProductIDs: []string{inst.ProductID()},
	})
}

// decode turns one frame into an event. A nil event with a nil error means
// the frame carries nothing for the book (info, heartbeat, other feeds).
func decode(raw []byte) (event.Event, error) {
	var m wireMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		if errors.Is(err, domain.ErrMalformedMessage) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}

	switch m.Event {
	case "":
	case "subscribed":
		return decodeAck(domain.AckSubscribed, m.ProductIDs), nil
	case "unsubscribed":
		return decodeAck(domain.AckUnsubscribed, m.ProductIDs), nil
	case "error", "subscribed_failed", "unsubscribed_failed":
		return nil, fmt.Errorf("%w: %s %s", errVenue, m.Event, m.Message)
	default:
		return nil, nil
	}

	switch m.Feed {
	case feedBookSnapshot:
		inst, err := bookInstrument(m)
		if err != nil {
			return nil, err
		}
		return &event.SnapshotEvent{Instrument: inst, Bids: m.Bids, Asks: m.Asks}, nil

	case feedBook:
		inst, err := bookInstrument(m)
		if err != nil {
			return nil, err
		}
		ev := event.AcquireDeltaEvent()
		ev.Instrument = inst
		ev.Bids = append(ev.Bids, m.Bids...)
		ev.Asks = append(ev.Asks, m.Asks...)
		return ev, nil
	}
	return nil, nil
}

// bookFrame reports whether raw carries book data. Frames that are not JSON
// at all count too, since their feed cannot be ruled out.
func bookFrame(raw []byte) bool {
	var head struct {
		Event string `json:"event"`
		Feed  string `json:"feed"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return true
	}
	return head.Event == "" && strings.HasPrefix(head.Feed, feedBook)
}

func decodeAck(kind domain.AckKind, productIDs []string) *event.AckEvent {
	ev := &event.AckEvent{Kind: kind}
	for _, id := range productIDs {
		if inst, ok := domain.InstrumentFromProductID(id); ok {
			ev.Instruments = append(ev.Instruments, inst)
		}
	}
	return ev
}

// bookInstrument validates the product id and every level of a book message.
func bookInstrument(m wireMessage) (domain.Instrument, error) {
	inst, ok := domain.InstrumentFromProductID(m.ProductID)
	if !ok {
		return "", fmt.Errorf("%w: unknown product_id %q", domain.ErrMalformedMessage, m.ProductID)
	}
	for _, side := range [][]domain.RawLevelUpdate{m.Bids, m.Asks} {
		for _, u := range side {
			if err := u.Validate(); err != nil {
				return "", err
			}
		}
	}
	return inst, nil
}
