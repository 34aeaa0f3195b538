package permutations

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bl4ck0w1/shadowscan/internal/discovery"
)

const DefaultWordlistFile = "common_subdomains.txt"

// maxWordLen matches the longest DNS label plus room for dotted prefixes.
const maxWordLen = 255

var defaultWords = []string{
	"www", "mail", "webmail", "smtp", "pop", "imap", "ftp",
	"api", "dev", "test", "staging", "prod", "beta", "alpha",
	"admin", "dashboard", "portal", "login", "secure", "auth",
	"blog", "news", "forum", "community", "support", "help",
	"shop", "store", "cart", "payment", "checkout",
	"app", "mobile", "m", "cdn", "static", "assets", "media",
	"docs", "wiki", "status", "monitor", "metrics", "stats",
	"git", "svn", "jenkins", "ci", "build", "deploy",
	"db", "sql", "mysql", "postgres", "mongo", "redis",
	"vpn", "remote", "proxy", "cache", "loadbalancer",
	"internal", "intranet", "private", "local", "home",
	"mail2", "web", "ns1", "ns2", "dns", "mx", "mx1",
	"old", "new", "legacy", "archive", "backup",
	"cloud", "aws", "azure", "google", "digitalocean",
	"test1", "test2", "demo", "stage", "preprod",
	"secure2", "admin2", "portal2", "web2", "app2",
}

type Wordlist struct {
	Path    string
	Words   []string
	Hash    string
	Created bool
}

// WordlistManager loads candidate files and remembers their content hash so a
// multi-domain run reads each file once.
type WordlistManager struct {
	lists     map[string]*Wordlist
	mu        sync.RWMutex
	logger    *logrus.Logger
	lowercase bool
	caser     cases.Caser
}

func NewWordlistManager(lowercase bool, logger *logrus.Logger) *WordlistManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &WordlistManager{
		lists:     make(map[string]*Wordlist),
		logger:    logger,
		lowercase: lowercase,
		caser:     cases.Lower(language.Und),
	}
}

// Load returns the words of path in file order. A missing file is replaced by
// the default list written to path. An empty result is a configuration error.
func (wm *WordlistManager) Load(path string) (*Wordlist, error) {
	wm.mu.RLock()
	cached, ok := wm.lists[path]
	wm.mu.RUnlock()
	if ok {
		if hash, err := hashFile(path); err == nil && hash == cached.Hash {
			return cached.clone(), nil
		}
	}

	created := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		wm.logger.Warnf("Cannot open wordlist %s, creating default wordlist", path)
		if err := WriteDefault(path); err != nil {
			return nil, &discovery.ConfigurationError{Reason: fmt.Sprintf("could not create wordlist %s: %v", path, err)}
		}
		created = true
		wm.logger.Infof("Created default wordlist %s with %d common subdomain patterns", path, len(defaultWords))
	}

	words, hash, err := wm.loadWordlist(path)
	if err != nil {
		return nil, &discovery.ConfigurationError{Reason: err.Error()}
	}
	if len(words) == 0 {
		return nil, &discovery.ConfigurationError{Reason: fmt.Sprintf("wordlist %s is empty", path)}
	}

	wl := &Wordlist{Path: path, Words: words, Hash: hash, Created: created}
	wm.mu.Lock()
	wm.lists[path] = wl
	wm.mu.Unlock()

	wm.logger.WithFields(logrus.Fields{"path": path, "words": len(words)}).Info("Loaded wordlist")
	return wl.clone(), nil
}

func (wm *WordlistManager) loadWordlist(path string) ([]string, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open wordlist file: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	words, err := wm.Parse(io.TeeReader(f, hasher))
	if err != nil {
		return nil, "", fmt.Errorf("failed to scan wordlist %s: %w", path, err)
	}
	return words, hex.EncodeToString(hasher.Sum(nil)), nil
}

// Parse reads one candidate per line, skipping blank lines and # comments.
// Order and duplicates are preserved.
func (wm *WordlistManager) Parse(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	const maxLine = 1024 * 1024
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var words []string
	for sc.Scan() {
		w := strings.TrimSpace(sc.Text())
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		if len(w) > maxWordLen {
			wm.logger.Debugf("Skipping oversized wordlist entry (%d bytes)", len(w))
			continue
		}
		if wm.lowercase {
			w = wm.caser.String(w)
		}
		words = append(words, w)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return words, nil
}

// WriteDefault writes the built-in list to path, creating parent directories.
func WriteDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	var b strings.Builder
	for _, w := range defaultWords {
		b.WriteString(w)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (wl *Wordlist) clone() *Wordlist {
	cp := *wl
	cp.Words = make([]string, len(wl.Words))
	copy(cp.Words, wl.Words)
	return &cp
}
