package service

import "strings"

// DMSeparator joins the two participant ids of a direct message key. It must
// never occur inside a user or room id.
const DMSeparator = "_"

// DMKey is the conversation id shared by a and b, independent of argument order.
func DMKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + DMSeparator + b
}

// IsDMKey reports whether id has the shape of a direct message key.
func IsDMKey(id string) bool {
	parts := strings.Split(id, DMSeparator)
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}

// PeerOf returns the other participant of a DM key. ok is false when self is
// not a participant.
func PeerOf(key, self string) (peer string, ok bool) {
	if !IsDMKey(key) {
		return "", false
	}
	parts := strings.Split(key, DMSeparator)
	switch self {
	case parts[0]:
		return parts[1], true
	case parts[1]:
		return parts[0], true
	}
	return "", false
}
