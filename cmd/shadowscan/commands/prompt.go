package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bl4ck0w1/shadowscan/internal/orchestration"
	"github.com/bl4ck0w1/shadowscan/pkg/models"
)

// NewPromptGate asks on out whether the wordlist phase should start and
// reads the answer from in. Anything but y/yes declines, as does a closed
// input or a cancelled context.
func NewPromptGate(in io.Reader, out io.Writer) orchestration.Gate {
	reader := bufio.NewReader(in)
	return orchestration.GateFunc(func(ctx context.Context, soFar models.ScanSummary) bool {
		if soFar.Found > 0 {
			fmt.Fprintf(out, "\n%d subdomain(s) already found in CT logs.\n", soFar.Found)
		}
		fmt.Fprintf(out, "Start wordlist scan of %d candidates? (y/n): ", soFar.WordlistSize)

		answer := make(chan string, 1)
		go func() {
			line, _ := reader.ReadString('\n')
			answer <- line
		}()

		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return false
		case line := <-answer:
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return true
			}
			return false
		}
	})
}
