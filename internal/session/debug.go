package session

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/ring"
)

// maxDebugDumps caps how many audio dumps accumulate under StateDir,
// matching the original engine's debug_audio.rs retention policy.
const maxDebugDumps = 50

const dumpSampleRate = 16000

type audioDumpMetadata struct {
	Timestamp    time.Time `json:"timestamp"`
	DurationMS   int64     `json:"duration_ms"`
	SampleRate   int       `json:"sample_rate"`
	SampleCount  int       `json:"sample_count"`
}

// dumpAudioWindow writes the confirmed audio window as a 16-bit mono PCM
// WAV file plus a JSON metadata sidecar under dir, gated by
// Debug.EnableAudioDump. It never blocks the session on I/O errors: the
// caller only logs a warning.
func dumpAudioWindow(dir string, frames []ring.Frame) (string, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "dictd-debug")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}

	sampleCount := 0
	for _, f := range frames {
		sampleCount += len(f)
	}

	stamp := time.Now().UTC().Format("20060102_150405.000")
	base := fmt.Sprintf("recording_%s", stamp)
	wavPath := filepath.Join(dir, base+".wav")
	jsonPath := filepath.Join(dir, base+".json")

	if err := writeWAV(wavPath, frames, dumpSampleRate); err != nil {
		return "", err
	}

	meta := audioDumpMetadata{
		Timestamp:   time.Now().UTC(),
		DurationMS:  int64(sampleCount) * 1000 / dumpSampleRate,
		SampleRate:  dumpSampleRate,
		SampleCount: sampleCount,
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err == nil {
		_ = os.WriteFile(jsonPath, metaJSON, 0o600)
	}

	cleanupOldDumps(dir)
	return wavPath, nil
}

// writeWAV encodes frames as a canonical 16-bit PCM mono WAV file.
func writeWAV(path string, frames []ring.Frame, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	defer f.Close()

	sampleCount := 0
	for _, frame := range frames {
		sampleCount += len(frame)
	}
	dataSize := sampleCount * 2
	byteRate := sampleRate * 2

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], 1) // mono
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], 2) // block align
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}

	buf := make([]byte, 2)
	for _, frame := range frames {
		for _, sample := range frame {
			v := int16(clampSample(sample) * 32767)
			binary.LittleEndian.PutUint16(buf, uint16(v))
			if _, err := f.Write(buf); err != nil {
				return fmt.Errorf("write wav samples: %w", err)
			}
		}
	}
	return nil
}

func clampSample(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

// cleanupOldDumps removes the oldest *.wav/*.json pairs beyond
// maxDebugDumps, mirroring the original engine's fixed-size retention.
func cleanupOldDumps(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var wavFiles []os.DirEntry
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".wav" {
			wavFiles = append(wavFiles, e)
		}
	}
	if len(wavFiles) <= maxDebugDumps {
		return
	}

	sort.Slice(wavFiles, func(i, j int) bool {
		return wavFiles[i].Name() < wavFiles[j].Name()
	})

	excess := len(wavFiles) - maxDebugDumps
	for _, e := range wavFiles[:excess] {
		base := e.Name()[:len(e.Name())-len(".wav")]
		_ = os.Remove(filepath.Join(dir, base+".wav"))
		_ = os.Remove(filepath.Join(dir, base+".json"))
	}
}
