// Package pathcodec maps entity names onto file system path segments.
//
// Encode and Decode are exact inverses and are used wherever a name must
// survive a trip through the file system (folder directories, policy files,
// folder-relative policy paths). Sanitize is lossy and is only used for
// generated artifact names, which are never read back into entity names.
package pathcodec

import (
	"fmt"
	"strings"
)

const (
	// SlashMarker stands in for '/' in an encoded segment.
	SlashMarker = "_¯"
	// BackslashMarker stands in for '\' in an encoded segment.
	BackslashMarker = "¯_"
)

// InvalidNameError is returned by Encode for names that already contain one
// of the markers and so cannot be encoded without ambiguity.
type InvalidNameError struct {
	Name   string
	Marker string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("name %q contains reserved sequence %q and cannot be encoded as a path segment", e.Name, e.Marker)
}

var (
	encoder = strings.NewReplacer("/", SlashMarker, `\`, BackslashMarker)
	decoder = strings.NewReplacer(SlashMarker, "/", BackslashMarker, `\`)
)

// Encode returns the path segment for name.
func Encode(name string) (string, error) {
	for _, m := range []string{SlashMarker, BackslashMarker} {
		if strings.Contains(name, m) {
			return "", &InvalidNameError{Name: name, Marker: m}
		}
	}
	enc := encoder.Replace(name)
	// A '¯' right before a '/' forms a marker across the boundary: "¯/"
	// encodes to "¯_¯", which decodes as `\¯`.
	if Decode(enc) != name {
		return "", &InvalidNameError{Name: name, Marker: "¯"}
	}
	return enc, nil
}

// Decode returns the name a segment produced by Encode was derived from.
func Decode(segment string) string {
	return decoder.Replace(segment)
}

// Sanitize replaces characters that are illegal in file names on common file
// systems with '_'. Runs of illegal characters collapse into one '_'.
func Sanitize(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	placeholder := false
	for _, r := range name {
		if strings.ContainsRune(`<>:'/\|?*`, r) || r == 0 {
			if !placeholder {
				sb.WriteByte('_')
				placeholder = true
			}
			continue
		}
		placeholder = false
		sb.WriteRune(r)
	}
	return sb.String()
}
