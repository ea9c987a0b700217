package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWAV_GeneratedBeep(t *testing.T) {
	data := Beep(8000, 440, 100*time.Millisecond)

	format, samples, err := parseWAV(data)
	require.NoError(t, err)
	assert.Equal(t, &wavFormat{SampleRate: 8000, Channels: 1, BitDepth: 16}, format)
	// 800 tone samples plus 800 silent ones, 2 bytes each
	assert.Len(t, samples, 3200)
}

func TestParseWAV_SkipsUnknownChunks(t *testing.T) {
	data := Beep(8000, 440, 10*time.Millisecond)
	// splice a LIST chunk between the header and fmt
	list := append([]byte("LIST"), 4, 0, 0, 0, 'a', 'b', 'c', 'd')
	spliced := append(append(append([]byte{}, data[:12]...), list...), data[12:]...)

	format, samples, err := parseWAV(spliced)
	require.NoError(t, err)
	assert.Equal(t, 8000, format.SampleRate)
	assert.Len(t, samples, 320)
}

func TestParseWAV_Rejects(t *testing.T) {
	_, _, err := parseWAV([]byte("RIFF"))
	assert.Error(t, err)

	_, _, err = parseWAV([]byte("RIFF\x00\x00\x00\x00AVI "))
	assert.Error(t, err)

	data := Beep(8000, 440, 10*time.Millisecond)
	_, _, err = parseWAV(data[:len(data)-10])
	assert.ErrorContains(t, err, "truncated")
}

func TestLoadSound(t *testing.T) {
	data, err := LoadSound("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSound(), data)

	dir := t.TempDir()
	good := filepath.Join(dir, "good.wav")
	require.NoError(t, os.WriteFile(good, Beep(8000, 440, 10*time.Millisecond), 0o600))
	_, err = LoadSound(good)
	assert.NoError(t, err)

	bad := filepath.Join(dir, "bad.wav")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o600))
	_, err = LoadSound(bad)
	assert.Error(t, err)

	_, err = LoadSound(filepath.Join(dir, "missing.wav"))
	assert.Error(t, err)
}

func TestPlayer_StopNilIsSafe(t *testing.T) {
	var p *Player
	assert.NotPanics(t, p.Stop)
}
