package pending

import (
	"encoding/json"
	"fmt"
)

// encodeBookings serializes a list for the durable slot. An empty list is
// written as "[]", never "null".
func encodeBookings(list []Booking) (string, error) {
	if list == nil {
		list = []Booking{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeBookings parses a slot payload.
//
// The payload must be a JSON array of bookings, each with a transaction id
// and the pending status; otherwise the whole payload is rejected. "null"
// decodes to an empty list. Repeated transaction ids keep their first
// occurrence.
func decodeBookings(raw string) ([]Booking, error) {
	var list []Booking
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("failed to parse pending bookings: %w", err)
	}

	seen := make(map[string]struct{}, len(list))
	result := make([]Booking, 0, len(list))
	for i, b := range list {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("pending bookings[%d]: %w", i, err)
		}
		if _, dup := seen[b.TxID]; dup {
			continue
		}
		seen[b.TxID] = struct{}{}
		result = append(result, b)
	}
	return result, nil
}
