package main

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"

	"github.com/asad/blobsync/internal/archive"
	"github.com/asad/blobsync/internal/config"
	"github.com/asad/blobsync/internal/logging"
)

// maxErrorLength is the size of the message buffer callers pass in.
const maxErrorLength = 512

// library holds what the exports share. Callers are long-lived servers, so
// it is built once from the environment on first use.
type library struct {
	adapter *archive.Adapter
	timeout time.Duration
}

var (
	libOnce sync.Once
	libInst *library
)

func lib() *library {
	libOnce.Do(func() {
		libInst = newLibrary(viper.New())
	})
	return libInst
}

// newLibrary reads LOG_LEVEL and OP_TIMEOUT. A config error leaves the
// defaults in place rather than failing every call.
func newLibrary(v *viper.Viper) *library {
	config.SetDefaults(v)
	cfg, loadErr := config.Load(v)
	if loadErr != nil {
		cfg = &config.Config{LogLevel: "info", Timeout: config.DefaultTimeout}
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger = logging.NewNop()
	}
	if loadErr != nil {
		logger.Warn("could not load configuration, using defaults", logging.ErrorField(loadErr))
	}

	return &library{
		adapter: archive.New(archive.WithLogger(logger.With(logging.String("component", "libblobsync")))),
		timeout: cfg.Timeout,
	}
}

func (l *library) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), l.timeout)
}

// fillMessage copies msg into buf, truncating so a NUL terminator always fits.
// A truncated message never ends in a partial UTF-8 sequence.
func fillMessage(buf []byte, msg string) {
	if len(buf) == 0 {
		return
	}
	if limit := len(buf) - 1; len(msg) > limit {
		for limit > 0 && !utf8.RuneStart(msg[limit]) {
			limit--
		}
		msg = msg[:limit]
	}
	n := copy(buf, msg)
	buf[n] = 0
}
