package registry

import "strings"

// Validation messages, in the order Validate reports them.
const (
	msgNameRequired = "Location name is required"
	msgChannelID    = "Channel ID must be numeric"
	msgReadKey      = "Read API key appears to be too short"
)

// minReadKeyLength is the shortest plausible ThingSpeak read API key.
const minReadKeyLength = 16

// Validate checks a create request and returns human-readable error
// messages, in a fixed order. An empty result means the request is valid.
//
// Validation is advisory for single creates and updates; CreateMany uses it
// as its per-record gate.
func Validate(req CreateRequest) []string {
	var msgs []string

	if strings.TrimSpace(req.Name) == "" {
		msgs = append(msgs, msgNameRequired)
	}
	if req.ChannelID != "" && !isNumeric(req.ChannelID) {
		msgs = append(msgs, msgChannelID)
	}
	if req.ReadKey != "" && len(req.ReadKey) < minReadKeyLength {
		msgs = append(msgs, msgReadKey)
	}

	return msgs
}

// isNumeric reports whether s consists entirely of decimal digits.
func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
