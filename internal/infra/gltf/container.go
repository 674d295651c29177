package gltf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/gjson"
)

const (
	glbMagic      = 0x46546C67 // "glTF"
	glbVersion    = 2
	chunkTypeJSON = 0x4E4F534A // "JSON"
	headerSize    = 12
)

var (
	ErrInvalidContainer = errors.New("invalid glb container")
	ErrInvalidDocument  = errors.New("invalid gltf json document")
)

type glbHeader struct {
	Magic   uint32
	Version uint32
	Length  uint32
}

type chunkHeader struct {
	Length uint32
	Type   uint32
}

// ReadDocument returns the JSON document of a .glb or .gltf file.
func ReadDocument(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode detects the container from its first bytes: GLB files start with the
// "glTF" magic, anything else is read as a JSON .gltf document.
func Decode(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(4)
	if len(head) < 4 || binary.LittleEndian.Uint32(head) != glbMagic {
		data, err := io.ReadAll(br)
		if err != nil {
			return nil, err
		}
		if !gjson.ValidBytes(data) {
			return nil, ErrInvalidDocument
		}
		return data, nil
	}

	var hdr glbHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidContainer, err)
	}
	if hdr.Version != glbVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidContainer, hdr.Version)
	}

	var ch chunkHeader
	if err := binary.Read(br, binary.LittleEndian, &ch); err != nil {
		return nil, fmt.Errorf("%w: chunk header: %v", ErrInvalidContainer, err)
	}
	if ch.Type != chunkTypeJSON {
		return nil, fmt.Errorf("%w: first chunk is not JSON", ErrInvalidContainer)
	}
	if uint64(ch.Length)+headerSize+8 > uint64(hdr.Length) {
		return nil, fmt.Errorf("%w: JSON chunk exceeds declared length", ErrInvalidContainer)
	}

	// Grow with the bytes actually present; the declared length is untrusted.
	data, err := io.ReadAll(io.LimitReader(br, int64(ch.Length)))
	if err != nil {
		return nil, fmt.Errorf("%w: JSON chunk: %v", ErrInvalidContainer, err)
	}
	if int64(len(data)) != int64(ch.Length) {
		return nil, fmt.Errorf("%w: JSON chunk truncated at %d of %d bytes", ErrInvalidContainer, len(data), ch.Length)
	}
	// JSON chunks are padded with spaces to a 4-byte boundary.
	data = bytes.TrimRight(data, " \x00")
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidDocument
	}
	return data, nil
}
