// Package diag provides the diagnostic logger used by background workers.
// Detection results never go through it; they go to the event log.
package diag

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	out    io.Writer = os.Stderr
	level            = zerolog.WarnLevel
	silent bool
)

// SetLevel sets the minimum level for loggers created afterwards. Unknown
// names leave the level unchanged.
func SetLevel(name string) {
	if name == "" {
		return
	}
	l, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return
	}
	mu.Lock()
	level = l
	mu.Unlock()
}

// SetOutput redirects loggers created afterwards. A nil writer silences them.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		silent = true
		return
	}
	silent = false
	out = w
}

// New returns a console logger tagged with the given module name.
func New(module string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if silent {
		return zerolog.Nop()
	}
	w := zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
		cw.Out = out
		cw.NoColor = true
	})
	return zerolog.New(w).Level(level).With().Timestamp().Str("module", module).Logger()
}
