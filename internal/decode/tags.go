package decode

import "strings"

// TagValues returns the text of every <tag>..</tag> pair in doc, in
// document order. Used by the metadata reports, whose fields come back
// under stable named tags rather than positional ones.
func TagValues(doc, tag string) []string {
	open, close := "<"+tag+">", "</"+tag+">"
	var out []string
	for {
		i := strings.Index(doc, open)
		if i < 0 {
			return out
		}
		doc = doc[i+len(open):]
		j := strings.Index(doc, close)
		if j < 0 {
			return out
		}
		out = append(out, doc[:j])
		doc = doc[j+len(close):]
	}
}

// FirstTag returns the first <tag>..</tag> value in doc.
func FirstTag(doc, tag string) (string, bool) {
	vals := TagValues(doc, tag)
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// StripBOM removes a leading byte-order mark left over from decoding.
func StripBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}
