package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the wire form of an Event on the Redis relay and the Kafka
// topic. Producer is the instance id that committed the change.
type Envelope struct {
	Producer string `json:"producer"`
	Event    Event  `json:"event"`
}

var ErrMalformedEvent = errors.New("malformed event")

func EncodeEvent(producer string, event Event) ([]byte, error) {
	return json.Marshal(Envelope{Producer: producer, Event: event})
}

func DecodeEvent(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	e := env.Event
	switch {
	case e.ID == "" || e.AuctionID == "":
		return Envelope{}, fmt.Errorf("%w: missing id", ErrMalformedEvent)
	case e.Version <= 0:
		return Envelope{}, fmt.Errorf("%w: version %d", ErrMalformedEvent, e.Version)
	case e.Type != AuctionUpdated && e.Type != BidAccepted:
		return Envelope{}, fmt.Errorf("%w: type %q", ErrMalformedEvent, e.Type)
	case e.Auction == nil:
		return Envelope{}, fmt.Errorf("%w: no auction snapshot", ErrMalformedEvent)
	case e.Type == BidAccepted && e.Bid == nil:
		return Envelope{}, fmt.Errorf("%w: bid_accepted without bid", ErrMalformedEvent)
	}
	return env, nil
}
