package lifecycle

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/crc64nvme"
	"github.com/wolfeidau/disciplinary/internal/store"
)

// encodeSnapshot serializes a document's fields as zstd compressed JSON and
// returns it base64 encoded along with the CRC64-NVME of the JSON.
func encodeSnapshot(fields store.Fields) (snapshot, checksum string, err error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return "", "", fmt.Errorf("failed to create encoder: %w", err)
	}
	defer enc.Close()

	compressed := enc.EncodeAll(raw, nil)
	return base64.StdEncoding.EncodeToString(compressed), computeCRC64(raw), nil
}

// ReadSnapshot decodes an audit record snapshot and verifies its checksum.
func ReadSnapshot(snapshot, checksum string) (map[string]any, error) {
	compressed, err := base64.StdEncoding.DecodeString(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	if got := computeCRC64(raw); got != checksum {
		return nil, fmt.Errorf("snapshot checksum mismatch: got %s, want %s", got, checksum)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return out, nil
}

// computeCRC64 computes the CRC64-NVME checksum as fixed width hex.
func computeCRC64(data []byte) string {
	h := crc64nvme.New()
	h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}
