package vault

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// Container layout (symmetric format):
//
//	[nonce      : 12 bytes]
//	[timestamp  : 8 bytes little-endian float64, seconds since epoch]
//	[meta_len   : 4 bytes little-endian uint32]
//	[meta_json  : meta_len bytes UTF-8]
//	[ciphertext : rest, ends with the 16-byte GCM tag]
const (
	NonceSize  = 12
	headerMin  = NonceSize + 8 + 4
	gcmTagSize = 16
)

type container struct {
	Nonce      []byte
	Timestamp  float64
	Meta       map[string]interface{}
	Ciphertext []byte
}

func encodeContainer(c container) ([]byte, error) {
	metaJSON, err := json.Marshal(c.Meta)
	if err != nil {
		return nil, fmt.Errorf("vault: encode metadata: %w", err)
	}

	out := make([]byte, 0, headerMin+len(metaJSON)+len(c.Ciphertext))
	out = append(out, c.Nonce...)
	out = binary.LittleEndian.AppendUint64(out, math.Float64bits(c.Timestamp))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(metaJSON)))
	out = append(out, metaJSON...)
	out = append(out, c.Ciphertext...)
	return out, nil
}

func decodeContainer(data []byte) (container, error) {
	var c container
	if len(data) < headerMin {
		return c, fmt.Errorf("%w: container truncated (%d bytes)", ErrMalformedPayload, len(data))
	}

	c.Nonce = data[:NonceSize]
	off := NonceSize
	c.Timestamp = math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8
	metaLen := int(binary.LittleEndian.Uint32(data[off : off+4]))
	off += 4

	if len(data) < off+metaLen {
		return c, fmt.Errorf("%w: metadata length %d exceeds container", ErrMalformedPayload, metaLen)
	}
	if metaLen > 0 {
		if err := json.Unmarshal(data[off:off+metaLen], &c.Meta); err != nil {
			return c, fmt.Errorf("%w: metadata not valid JSON", ErrMalformedPayload)
		}
	}
	off += metaLen

	c.Ciphertext = data[off:]
	if len(c.Ciphertext) < gcmTagSize {
		return c, fmt.Errorf("%w: ciphertext shorter than auth tag", ErrMalformedPayload)
	}
	return c, nil
}
