package models

import (
	"strconv"
)

const (
	SourceCT       = "ct"
	SourceWordlist = "wordlist"

	// AddressFromCert marks a hit taken from certificate data without a live probe.
	AddressFromCert = "N/A (from cert)"
	AddressUnknown  = "N/A"
)

type DiscoveryResult struct {
	Subdomain       string `json:"subdomain" yaml:"subdomain"`
	Found           bool   `json:"found" yaml:"found"`
	ResolvedAddress string `json:"resolved_address,omitempty" yaml:"resolved_address,omitempty"`
	StatusCode      int    `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Source          string `json:"source" yaml:"source"`
}

func (r DiscoveryResult) HasStatus() bool { return r.StatusCode > 0 }

func (r DiscoveryResult) Status() string {
	if r.Found {
		return "FOUND"
	}
	return "NOT_FOUND"
}

// Record maps the result onto the SUBDOMAIN,STATUS,HTTP_CODE,IP row layout.
func (r DiscoveryResult) Record() []string {
	ip := r.ResolvedAddress
	if ip == "" {
		ip = AddressUnknown
	}
	return []string{r.Subdomain, r.Status(), strconv.Itoa(r.StatusCode), ip}
}

var RecordHeader = []string{"SUBDOMAIN", "STATUS", "HTTP_CODE", "IP"}
