package utils

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "19.53 KB", FormatSize(20000))
	assert.Equal(t, "1.50 MB", FormatSize(3*1024*1024/2))
	assert.Equal(t, "2.00 GB", FormatSize(2*1024*1024*1024))
	assert.Equal(t, "1.00 KB/s", FormatSpeed(1024))
	assert.Equal(t, "-", FormatSpeed(0))
}

func TestFormatTimeDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatTimeDuration(250*time.Millisecond))
	assert.Equal(t, "42s", FormatTimeDuration(42*time.Second))
	assert.Equal(t, "2m 5s", FormatTimeDuration(125*time.Second))
	assert.Equal(t, "1h 0m 1s", FormatTimeDuration(time.Hour+time.Second))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abcd…", TruncateString("abcdefgh", 5))
	assert.Equal(t, "日本…", TruncateString("日本語のファイル", 3))
}

func TestGetUniqueFilename(t *testing.T) {
	dir := t.TempDir()

	first := GetUniqueFilename(dir, "a.txt")
	assert.Equal(t, filepath.Join(dir, "a.txt"), first)
	require.NoError(t, os.WriteFile(first, nil, 0o644))

	second := GetUniqueFilename(dir, "a.txt")
	assert.Equal(t, filepath.Join(dir, "a (1).txt"), second)
	require.NoError(t, os.WriteFile(second, nil, 0o644))

	assert.Equal(t, filepath.Join(dir, "a (2).txt"), GetUniqueFilename(dir, "a.txt"))
	assert.Equal(t, filepath.Join(dir, "passwd"), GetUniqueFilename(dir, "../../etc/passwd"))
	assert.Equal(t, filepath.Join(dir, "unknown"), GetUniqueFilename(dir, ""))
}

func TestCarrierNATDetection(t *testing.T) {
	assert.True(t, isTunnelName("wg0"))
	assert.True(t, isTunnelName("utun3"))
	assert.False(t, isTunnelName("eth0"))

	assert.True(t, inCarrierNAT(&net.IPNet{IP: net.ParseIP("100.100.1.2"), Mask: net.CIDRMask(10, 32)}))
	assert.False(t, inCarrierNAT(&net.IPAddr{IP: net.ParseIP("192.168.1.2")}))
}
