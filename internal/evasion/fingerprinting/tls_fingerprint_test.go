package fingerprinting

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
)

func TestFingerprintNames(t *testing.T) {
	tf := NewTLSFingerprinter(nil)
	if got := tf.GetFingerprintNames(); !slices.Equal(got, []string{"golang", "randomized"}) {
		t.Errorf("names = %v", got)
	}
	_, err := tf.GetFingerprint("chrome")
	if err == nil || !strings.Contains(err.Error(), "golang, randomized") {
		t.Errorf("unknown fingerprint err = %v, want supported names listed", err)
	}
}

func TestDialTLSContextHandshake(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	tf := NewTLSFingerprinter(nil)
	for _, name := range []string{FingerprintGolang} {
		t.Run(name, func(t *testing.T) {
			dial, err := tf.DialTLSContext(name, nil, true)
			if err != nil {
				t.Fatal(err)
			}
			client := &http.Client{Transport: &http.Transport{DialTLSContext: dial}}
			req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
			resp, err := client.Do(req)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if string(body) != "ok" {
				t.Errorf("body = %q", body)
			}
		})
	}
}
