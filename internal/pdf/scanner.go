package pdf

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
)

var (
	objHeaderRegex   = regexp.MustCompile(`(?:^|[\s>])(\d{1,10})[ \t\r\n]+(\d{1,5})[ \t\r\n]+obj\b`)
	streamStartRegex = regexp.MustCompile(`>>[ \t\r\n]*stream(?:\r\n|\n|\r)`)

	errStreamNotFound = errors.New("stream data not found")
)

type objKey struct {
	id  uint32
	gen uint16
}

// scanObjects records the byte offset of every "N G obj" header in data.
// Streams are never stored inside object streams, so this finds every stream
// object of the file. When an object is redefined by an incremental update the
// later definition wins, as it does in the xref chain.
func scanObjects(data []byte) map[objKey]int {
	offsets := make(map[objKey]int)
	for _, m := range objHeaderRegex.FindAllSubmatchIndex(data, -1) {
		id, err := strconv.ParseUint(string(data[m[2]:m[3]]), 10, 32)
		if err != nil {
			continue
		}
		gen, err := strconv.ParseUint(string(data[m[4]:m[5]]), 10, 16)
		if err != nil {
			continue
		}
		offsets[objKey{uint32(id), uint16(gen)}] = m[2]
	}
	return offsets
}

// rawStreamAt returns the still-encoded data of the stream object starting at
// off. length is the resolved /Length of the stream; if it does not line up
// with an endstream keyword the data is delimited by the keyword instead.
func rawStreamAt(data []byte, off int, length int64) ([]byte, error) {
	if off < 0 || off >= len(data) {
		return nil, errStreamNotFound
	}
	loc := streamStartRegex.FindIndex(data[off:])
	if loc == nil {
		return nil, errStreamNotFound
	}
	start := off + loc[1]

	if length >= 0 && start+int(length) <= len(data) {
		end := start + int(length)
		rest := bytes.TrimLeft(data[end:], "\r\n \t")
		if bytes.HasPrefix(rest, []byte("endstream")) {
			return data[start:end], nil
		}
	}

	end := bytes.Index(data[start:], []byte("endstream"))
	if end < 0 {
		return nil, errStreamNotFound
	}
	raw := data[start : start+end]
	raw = bytes.TrimSuffix(raw, []byte("\n"))
	raw = bytes.TrimSuffix(raw, []byte("\r"))
	return raw, nil
}
