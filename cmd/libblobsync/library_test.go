package main

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/asad/blobsync/internal/archive"
)

func TestFillMessage(t *testing.T) {
	tests := []struct {
		name string
		size int
		msg  string
		want string
	}{
		{"fits", 16, "error", "error"},
		{"exact", 6, "error", "error"},
		{"truncated", 4, "error", "err"},
		{"empty", 4, "", ""},
		{"multibyte cut", 4, "ab\u00e9", "ab"},
		{"multibyte fits", 5, "ab\u00e9", "ab\u00e9"},
		{"four byte rune", 4, "a\U0001F600", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.size)
			for i := range buf {
				buf[i] = 'x'
			}
			fillMessage(buf, tt.msg)
			end := strings.IndexByte(string(buf), 0)
			if assert.GreaterOrEqual(t, end, 0, "message must be NUL-terminated") {
				assert.Equal(t, tt.want, string(buf[:end]))
			}
		})
	}

	assert.NotPanics(t, func() { fillMessage(nil, "error") })
}

func TestFillMessage_MaxErrorLength(t *testing.T) {
	buf := make([]byte, maxErrorLength)
	fillMessage(buf, strings.Repeat("a", 2*maxErrorLength))
	assert.Equal(t, byte(0), buf[maxErrorLength-1])
	assert.Equal(t, strings.Repeat("a", maxErrorLength-1), string(buf[:maxErrorLength-1]))
}

func TestFillMessage_ValidUTF8(t *testing.T) {
	msg := strings.Repeat("\u00e9", maxErrorLength)
	buf := make([]byte, maxErrorLength)
	fillMessage(buf, msg)
	end := strings.IndexByte(string(buf), 0)
	assert.Equal(t, maxErrorLength-2, end)
	assert.True(t, utf8.Valid(buf[:end]))
}

func TestNewLibrary_Timeout(t *testing.T) {
	t.Setenv("OP_TIMEOUT", "90s")
	t.Setenv("AZURE_ACCOUNT_FILE", "")

	l := newLibrary(viper.New())
	assert.Equal(t, 90*time.Second, l.timeout)

	ctx, cancel := l.opContext()
	defer cancel()
	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(90*time.Second), deadline, 5*time.Second)
}

func TestNewLibrary_BadAccountFileFallsBack(t *testing.T) {
	t.Setenv("AZURE_ACCOUNT_FILE", "/nonexistent/account")

	l := newLibrary(viper.New())
	assert.NotNil(t, l.adapter)
	assert.Greater(t, l.timeout, time.Duration(0))
	assert.False(t, l.adapter.GetTheFileStatus(context.Background(), archive.Ref{Container: "c1", Name: "f1"}))
}
