package ctlogs

import (
	"bytes"
	"encoding/json"
	"errors"
	"iter"
	"strings"

	"github.com/bl4ck0w1/shadowscan/internal/discovery"
)

const nameValueMarker = `"name_value"`

var errNoMarker = errors.New("no name_value field found")

// logEntry is the subset of a crt.sh JSON row the prober reads.
type logEntry struct {
	ID         int64  `json:"id"`
	IssuerName string `json:"issuer_name"`
	CommonName string `json:"common_name"`
	NameValue  string `json:"name_value"`
	NotBefore  string `json:"not_before"`
	NotAfter   string `json:"not_after"`
}

// Parser extracts candidate hostnames from a CT search response. The JSON
// array is decoded one element at a time; if decoding fails the remainder of
// the body is scanned for the name_value marker instead.
type Parser struct {
	body    []byte
	entries int
	markers int
	err     error
}

func NewParser(body []byte) *Parser {
	return &Parser{body: body}
}

// Names yields every hostname in body order. Multi-line values are split.
// Err is only meaningful once the sequence has been drained.
func (p *Parser) Names() iter.Seq[string] {
	return func(yield func(string) bool) {
		p.entries, p.markers, p.err = 0, 0, nil

		rest, ok := p.decodeJSON(yield)
		if ok {
			return
		}
		if rest == nil {
			return
		}
		if !p.scanMarkers(rest, yield) {
			return
		}
		if p.entries == 0 && p.markers == 0 {
			p.err = &discovery.ParseError{Bytes: len(p.body), Err: errNoMarker}
		}
	}
}

// Err returns a ParseError when the body held neither a JSON array nor any
// name_value marker.
func (p *Parser) Err() error {
	return p.err
}

// Entries reports how many JSON rows were decoded by the last iteration.
func (p *Parser) Entries() int {
	return p.entries
}

// decodeJSON walks the array. It returns ok=true when the whole array was
// consumed. Otherwise rest holds the undecoded tail for the marker scan, or
// nil if the consumer stopped early.
func (p *Parser) decodeJSON(yield func(string) bool) (rest []byte, ok bool) {
	dec := json.NewDecoder(bytes.NewReader(p.body))
	tok, err := dec.Token()
	if err != nil {
		return p.body, false
	}
	if delim, isDelim := tok.(json.Delim); !isDelim || delim != '[' {
		return p.body, false
	}

	for dec.More() {
		offset := dec.InputOffset()
		var entry logEntry
		if err := dec.Decode(&entry); err != nil {
			return p.body[offset:], false
		}
		p.entries++
		for _, name := range splitNames(entry.NameValue) {
			if !yield(name) {
				return nil, false
			}
		}
	}
	if _, err := dec.Token(); err != nil {
		return p.body[dec.InputOffset():], false
	}
	return nil, true
}

// scanMarkers finds each name_value key and decodes the quoted string that
// follows its colon. It returns false if the consumer stopped early.
func (p *Parser) scanMarkers(data []byte, yield func(string) bool) bool {
	for {
		idx := bytes.Index(data, []byte(nameValueMarker))
		if idx < 0 {
			return true
		}
		data = data[idx+len(nameValueMarker):]
		p.markers++

		value, n, ok := quotedValue(data)
		if !ok {
			continue
		}
		data = data[n:]
		for _, name := range splitNames(value) {
			if !yield(name) {
				return false
			}
		}
	}
}

// quotedValue reads `\s*:\s*"..."` from the start of data and returns the
// unescaped string and the number of bytes consumed.
func quotedValue(data []byte) (string, int, bool) {
	i := skipSpace(data, 0)
	if i >= len(data) || data[i] != ':' {
		return "", 0, false
	}
	i = skipSpace(data, i+1)
	if i >= len(data) || data[i] != '"' {
		return "", 0, false
	}
	start := i
	for i = start + 1; i < len(data); i++ {
		switch data[i] {
		case '\\':
			i++
		case '"':
			raw := data[start : i+1]
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				s = string(raw[1 : len(raw)-1])
			}
			return s, i + 1, true
		}
	}
	return "", 0, false
}

func skipSpace(data []byte, i int) int {
	for i < len(data) {
		switch data[i] {
		case ' ', '\t', '\r', '\n':
			i++
		default:
			return i
		}
	}
	return i
}

func splitNames(value string) []string {
	if !strings.ContainsAny(value, "\n") {
		value = strings.TrimSpace(value)
		if value == "" {
			return nil
		}
		return []string{value}
	}
	var names []string
	for _, line := range strings.Split(value, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names
}
