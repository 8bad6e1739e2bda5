package domain

import (
	"context"
)

// FeedWorker defines the interface for market-data WebSocket connectors
type FeedWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// SubscriptionRequester sends subscribe/unsubscribe requests to the feed.
type SubscriptionRequester interface {
	Subscribe(inst Instrument) error
	Unsubscribe(inst Instrument) error
}

// PreferenceStore persists small user settings (not book history).
type PreferenceStore interface {
	SaveInstrument(inst Instrument) error
	LastInstrument() (Instrument, bool, error)
}
