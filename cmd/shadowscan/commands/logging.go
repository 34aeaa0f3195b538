package commands

import (
	"sync"

	"github.com/bl4ck0w1/shadowscan/pkg/utils"
)

var (
	loggerMu  sync.RWMutex
	appLogger *utils.Logger
)

// SetLogger installs the process logger used by every command.
func SetLogger(l *utils.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	appLogger = l
}

func currentLogger() *utils.Logger {
	loggerMu.RLock()
	l := appLogger
	loggerMu.RUnlock()
	if l == nil {
		l = utils.ConsoleLogger("info")
		SetLogger(l)
	}
	return l
}
