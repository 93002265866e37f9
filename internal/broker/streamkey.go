package broker

import "strings"

// DeriveKey converts a display name into the stream key the origin sees:
// lowercase, each run of characters outside [a-z0-9] collapsed to a single
// underscore, leading and trailing underscores trimmed. The mapping is
// deterministic so the origin sees the same key across broker restarts.
func DeriveKey(name StreamName) StreamKey {
	var b strings.Builder
	b.Grow(len(name))

	pendingSep := false
	for _, r := range strings.ToLower(string(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		} else {
			pendingSep = true
		}
	}

	return StreamKey(b.String())
}
