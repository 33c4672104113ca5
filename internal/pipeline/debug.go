package pipeline

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/audio"
)

// pcmBuffer keeps a copy of streamed PCM for debug.audio_dump.
type pcmBuffer struct {
	mu  sync.Mutex
	pcm []byte
}

func (b *pcmBuffer) Write(chunk []byte) {
	b.mu.Lock()
	b.pcm = append(b.pcm, chunk...)
	b.mu.Unlock()
}

// Save writes the buffered audio as a WAV file under the state debug dir.
func (b *pcmBuffer) Save() (string, error) {
	b.mu.Lock()
	pcm := b.pcm
	b.pcm = nil
	b.mu.Unlock()

	if len(pcm) == 0 {
		return "", fmt.Errorf("no audio captured")
	}

	file, err := createDebugFile("audio", "wav")
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := writeWAV(file, pcm, audio.SampleRate, 1); err != nil {
		return "", fmt.Errorf("write %q: %w", file.Name(), err)
	}
	return file.Name(), nil
}

func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(stateDir, "murmur", "debug")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s.%s", prefix, time.Now().Format("20060102-150405.000"), extension)
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}

// writeWAV writes little-endian s16 PCM behind a canonical 44-byte header.
func writeWAV(w io.Writer, pcm []byte, sampleRate int, channels int) error {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}
