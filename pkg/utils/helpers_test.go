package utils

import (
	"slices"
	"strings"
	"testing"
	"time"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "Example.COM", want: "example.com"},
		{in: "example.com.", want: "example.com"},
		{in: "  sub.example.org ", want: "sub.example.org"},
		{in: "bücher.de", want: "xn--bcher-kva.de"},
		{in: "", wantErr: true},
		{in: "co.uk", wantErr: true},
		{in: "-bad-.com", wantErr: true},
		{in: "exa mple.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeDomain(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NormalizeDomain(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeDomain(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeDomain(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestReadDomains(t *testing.T) {
	in := "# targets\nexample.com\n\nTEST.org\nco.uk\n"
	got, err := ReadDomains(strings.NewReader(in))
	if err == nil || !strings.Contains(err.Error(), "line 5") {
		t.Errorf("err = %v, want line 5 reported", err)
	}
	if want := []string{"example.com", "test.org"}; !slices.Equal(got, want) {
		t.Errorf("domains = %q, want %q", got, want)
	}
}

func TestHumanizeDuration(t *testing.T) {
	cases := map[time.Duration]string{
		1500 * time.Millisecond: "1.50s",
		90 * time.Second:        "1m 30s",
		125 * time.Minute:       "2h 5m",
		50 * time.Hour:          "2d 2h",
	}
	for d, want := range cases {
		if got := HumanizeDuration(d); got != want {
			t.Errorf("HumanizeDuration(%v) = %q, want %q", d, got, want)
		}
	}
}
