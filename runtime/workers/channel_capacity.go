package workers

import (
	"reflect"
)

type NamedChannel struct {
	Name    string
	Channel any
}

type ChannelCapacity struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Length   int    `json:"length"`
}

// SampleChannels reads len and cap of each channel.
// Both are non-blocking reads, the figures may be stale by the time they are used.
func SampleChannels(channels []NamedChannel) []ChannelCapacity {
	res := make([]ChannelCapacity, 0, len(channels))
	for _, nc := range channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			continue
		}
		res = append(res, ChannelCapacity{Name: nc.Name, Capacity: v.Cap(), Length: v.Len()})
	}
	return res
}
