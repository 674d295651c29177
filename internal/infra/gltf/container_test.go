package gltf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// buildGLB wraps a JSON document in a GLB container with a trailing BIN chunk.
func buildGLB(t *testing.T, doc string, version uint32) []byte {
	t.Helper()
	jsonChunk := []byte(doc)
	for len(jsonChunk)%4 != 0 {
		jsonChunk = append(jsonChunk, ' ')
	}
	bin := []byte{1, 2, 3, 4}
	total := 12 + 8 + len(jsonChunk) + 8 + len(bin)

	var buf bytes.Buffer
	write := func(v any) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("binary.Write: %v", err)
		}
	}
	write(uint32(glbMagic))
	write(version)
	write(uint32(total))
	write(uint32(len(jsonChunk)))
	write(uint32(chunkTypeJSON))
	buf.Write(jsonChunk)
	write(uint32(len(bin)))
	write(uint32(0x004E4942))
	buf.Write(bin)
	return buf.Bytes()
}

func TestDecodeGLB(t *testing.T) {
	doc := `{"nodes":[{"name":"Snapshot_1","translation":[1,2,3]}]}`
	got, err := Decode(bytes.NewReader(buildGLB(t, doc, 2)))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got) != doc {
		t.Fatalf("Decode() = %q, want %q", got, doc)
	}
}

func TestDecodeGLTFJSON(t *testing.T) {
	doc := `{"asset":{"version":"2.0"},"nodes":[]}`
	got, err := Decode(bytes.NewReader([]byte(doc)))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got) != doc {
		t.Fatalf("Decode() = %q, want %q", got, doc)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "garbage", data: []byte("not a scene"), want: ErrInvalidDocument},
		{name: "empty", data: nil, want: ErrInvalidDocument},
		{name: "unsupported version", data: buildGLB(t, `{}`, 1), want: ErrInvalidContainer},
		{name: "truncated", data: buildGLB(t, `{"nodes":[]}`, 2)[:22], want: ErrInvalidContainer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.data))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeOversizedChunkHeader(t *testing.T) {
	var buf bytes.Buffer
	for _, v := range []uint32{glbMagic, 2, 0xFFFFFFFF, 0xFFFFFF00, chunkTypeJSON} {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	buf.WriteString(`{"nodes":[]}`)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := Decode(bytes.NewReader(buf.Bytes()))
	runtime.ReadMemStats(&after)

	if !errors.Is(err, ErrInvalidContainer) {
		t.Fatalf("Decode() error = %v, want ErrInvalidContainer", err)
	}
	if grew := after.TotalAlloc - before.TotalAlloc; grew > 8<<20 {
		t.Fatalf("Decode allocated %d bytes for a %d-byte file", grew, buf.Len())
	}
}

func TestExtractFileGLB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.glb")
	doc := `{"nodes":[{"name":"Room/Snapshot_07","translation":[1,2,3]},{"name":"Wall"}]}`
	if err := os.WriteFile(path, buildGLB(t, doc, 2), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := newTestExtractor().ExtractFile(path)
	if err != nil {
		t.Fatalf("ExtractFile() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "Snapshot_07" || got[0].Coordinates.Z != 3 {
		t.Fatalf("unexpected snapshots: %#v", got)
	}
}
