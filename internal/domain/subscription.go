package domain

// AckKind is the feed's answer to a subscription request.
type AckKind int

const (
	AckSubscribed AckKind = iota + 1
	AckUnsubscribed
)

// String returns the string representation of AckKind
func (k AckKind) String() string {
	switch k {
	case AckSubscribed:
		return "subscribed"
	case AckUnsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}
