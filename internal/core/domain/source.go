package domain

// Source is a discovered sender. Name and URL are copied out of the
// transport's listing when the snapshot is taken, so a Source stays valid
// after the discovery instance that produced it is closed.
type Source struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// ID returns the transport address, which is unique per sender.
func (s Source) ID() string {
	return s.URL
}

// SourcesEqual reports whether two snapshots list the same sources in the
// same order.
func SourcesEqual(a, b []Source) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
