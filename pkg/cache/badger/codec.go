package badger

import (
	"encoding/json"

	"github.com/pkexplorer/offworker/pkg/cache"
)

// Entries are stored as JSON. Bodies round-trip through the standard
// base64 encoding of []byte, which keeps values inspectable with badger
// tooling at the cost of some size overhead.

func encodeEntry(entry *cache.Entry) ([]byte, error) {
	return json.Marshal(entry)
}

func decodeEntry(data []byte) (*cache.Entry, error) {
	var entry cache.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
