package registry

import "time"

// Location is a named monitoring site tied to a ThingSpeak channel/key pair.
type Location struct {
	// ID uniquely identifies the location within the registry.
	ID string `json:"id"`

	// Name is the display name shown on the dashboard.
	Name string `json:"name"`

	// ChannelID is the numeric ThingSpeak channel identifier.
	ChannelID string `json:"channelId"`

	// ReadKey is the read-scoped ThingSpeak API key for the channel.
	ReadKey string `json:"readKey"`

	// LastUpdate is the time of the most recent reading seen for this
	// location, or null if no reading has been observed yet. It is set by
	// the feed fetch path, never at creation.
	LastUpdate *time.Time `json:"lastUpdate"`
}

// Configured reports whether the location has both a channel id and a read
// key, i.e. whether it can be queried for data.
func (l *Location) Configured() bool {
	return l.ChannelID != "" && l.ReadKey != ""
}

// clone returns a copy of the location, including its LastUpdate pointer
// target, so callers cannot mutate registry state through the result.
func (l *Location) clone() Location {
	out := *l
	if l.LastUpdate != nil {
		t := *l.LastUpdate
		out.LastUpdate = &t
	}
	return out
}

// CreateRequest holds the caller-supplied fields for a new location.
// Zero-valued fields receive the documented defaults at creation.
type CreateRequest struct {
	// ID is optional; a fresh id is generated when empty.
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	ChannelID string `json:"channelId"`
	ReadKey   string `json:"readKey"`
}

// UpdateRequest holds a partial update. Nil fields are left unchanged on
// the existing record.
type UpdateRequest struct {
	Name      *string `json:"name,omitempty"`
	ChannelID *string `json:"channelId,omitempty"`
	ReadKey   *string `json:"readKey,omitempty"`
}
