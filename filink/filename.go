package filink

import "strings"

const (
	wireNameLen = 8
	wireExtLen  = 3
	wireLen     = wireNameLen + wireExtLen
)

// ToWire converts a logical filename to its 11-byte wire form: 8 name
// bytes followed by 3 extension bytes, uppercase, space-padded.
//
// The split is on the FIRST dot, not the last: archive.tar.gz yields
// stem "archive", ext "tar". This matches the reference codec, not
// the more common "last dot" convention.
func ToWire(logical string) [wireLen]byte {
	upper := strings.ToUpper(logical)

	stem := upper
	ext := ""
	if idx := strings.IndexByte(upper, '.'); idx >= 0 {
		stem = upper[:idx]
		rest := upper[idx+1:]
		if j := strings.IndexByte(rest, '.'); j >= 0 {
			ext = rest[:j]
		} else {
			ext = rest
		}
	}

	if len(stem) > wireNameLen {
		stem = stem[:wireNameLen]
	}
	if len(ext) > wireExtLen {
		ext = ext[:wireExtLen]
	}

	var out [wireLen]byte
	for i := 0; i < wireLen; i++ {
		out[i] = ' '
	}
	copy(out[:wireNameLen], stem)
	copy(out[wireNameLen:], ext)
	return out
}

// FromWire converts an 11-byte wire filename back to a lowercase
// dotted logical name. Trailing spaces in each field are stripped; if
// the extension is empty the dot is omitted.
func FromWire(wire [wireLen]byte) string {
	name := strings.TrimRight(string(wire[:wireNameLen]), " ")
	ext := strings.TrimRight(string(wire[wireNameLen:]), " ")

	name = strings.ToLower(name)
	ext = strings.ToLower(ext)

	if ext == "" {
		return name
	}
	return name + "." + ext
}
