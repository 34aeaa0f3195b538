package ctlogs

import (
	"errors"
	"slices"
	"testing"

	"github.com/bl4ck0w1/shadowscan/internal/discovery"
)

func collect(p *Parser) []string {
	var out []string
	for name := range p.Names() {
		out = append(out, name)
	}
	return out
}

func TestParserNames(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []string
		wantErr bool
	}{
		{
			name: "json array",
			body: `[{"id":1,"name_value":"a.example.com"},{"id":2,"name_value":"b.example.com"}]`,
			want: []string{"a.example.com", "b.example.com"},
		},
		{
			name: "multi-line value",
			body: `[{"name_value":"a.example.com\nwww.example.com\n"}]`,
			want: []string{"a.example.com", "www.example.com"},
		},
		{
			name: "empty array",
			body: `[]`,
		},
		{
			name: "truncated json falls back to markers",
			body: `[{"name_value":"a.example.com"},{"name_value": "b.example.com", "id":`,
			want: []string{"a.example.com", "b.example.com"},
		},
		{
			name: "raw text with markers",
			body: `garbage "name_value":"x.example.com" more "name_value" : "y.example.com"`,
			want: []string{"x.example.com", "y.example.com"},
		},
		{
			name:    "no markers",
			body:    `<html>rate limited</html>`,
			wantErr: true,
		},
		{
			name:    "empty body",
			body:    ``,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser([]byte(tt.body))
			got := collect(p)
			if !slices.Equal(got, tt.want) {
				t.Errorf("names = %q, want %q", got, tt.want)
			}
			err := p.Err()
			if tt.wantErr {
				var pe *discovery.ParseError
				if !errors.As(err, &pe) {
					t.Fatalf("err = %v, want ParseError", err)
				}
				if !errors.Is(err, discovery.ErrParse) {
					t.Errorf("errors.Is(err, ErrParse) = false")
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParserStopsEarly(t *testing.T) {
	p := NewParser([]byte(`[{"name_value":"a"},{"name_value":"b"},{"name_value":"c"}]`))
	var got []string
	for name := range p.Names() {
		got = append(got, name)
		if len(got) == 2 {
			break
		}
	}
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("names = %q", got)
	}
}
