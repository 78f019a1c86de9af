package evidence

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"edgevision-worker-go/internal/models"
)

// Payload wire format. Deterministic, self-delimiting, and free of
// code-execution semantics; this is what the vault hashes and seals.
//
//	u32  frame_count
//	repeat frame_count times:
//	    f64  ts_seconds_since_epoch
//	    u32  jpeg_len
//	    bytes[jpeg_len]
//	    u16  det_count
//	    repeat det_count times:
//	        i32 x1, i32 y1, i32 x2, i32 y2
//	        f32 confidence
//	        u8  class_id
//	u32  meta_json_len
//	bytes[meta_json_len]
//
// All integers little-endian, all strings UTF-8.

// ErrCodec wraps every decode failure.
var ErrCodec = fmt.Errorf("evidence: malformed payload")

// EncodePayload serializes a closed evidence package.
func EncodePayload(pkg *models.EvidencePackage) ([]byte, error) {
	metaJSON, err := json.Marshal(pkg.Meta)
	if err != nil {
		return nil, fmt.Errorf("evidence: encode meta: %w", err)
	}

	size := 4 + 4 + len(metaJSON)
	for i := range pkg.Frames {
		size += 8 + 4 + len(pkg.Frames[i].JPEG) + 2 + 21*len(pkg.Frames[i].Detections)
	}

	out := make([]byte, 0, size)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(pkg.Frames)))
	for i := range pkg.Frames {
		rec := &pkg.Frames[i]
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(tsSeconds(rec.Timestamp)))
		out = binary.LittleEndian.AppendUint32(out, uint32(len(rec.JPEG)))
		out = append(out, rec.JPEG...)
		out = binary.LittleEndian.AppendUint16(out, uint16(len(rec.Detections)))
		for _, d := range rec.Detections {
			out = binary.LittleEndian.AppendUint32(out, uint32(d.X1))
			out = binary.LittleEndian.AppendUint32(out, uint32(d.Y1))
			out = binary.LittleEndian.AppendUint32(out, uint32(d.X2))
			out = binary.LittleEndian.AppendUint32(out, uint32(d.Y2))
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(d.Confidence))
			out = append(out, byte(d.Class))
		}
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(len(metaJSON)))
	out = append(out, metaJSON...)
	return out, nil
}

// DecodePayload parses a payload produced by EncodePayload. Decoding is
// bounded by the input length; a corrupt length prefix fails instead of
// over-allocating.
func DecodePayload(data []byte) (*models.EvidencePackage, error) {
	r := reader{buf: data}

	frameCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	pkg := &models.EvidencePackage{}
	if frameCount > 0 {
		pkg.Frames = make([]models.FrameRecord, 0, min(int(frameCount), len(data)/13))
	}

	for i := uint32(0); i < frameCount; i++ {
		var rec models.FrameRecord

		ts, err := r.f64()
		if err != nil {
			return nil, err
		}
		rec.Timestamp = secondsToTime(ts)

		jpegLen, err := r.u32()
		if err != nil {
			return nil, err
		}
		if rec.JPEG, err = r.bytes(int(jpegLen)); err != nil {
			return nil, err
		}

		detCount, err := r.u16()
		if err != nil {
			return nil, err
		}
		if detCount > 0 {
			rec.Detections = make([]models.Detection, 0, detCount)
		}
		for j := uint16(0); j < detCount; j++ {
			var d models.Detection
			coords := [4]int32{}
			for k := range coords {
				v, err := r.u32()
				if err != nil {
					return nil, err
				}
				coords[k] = int32(v)
			}
			d.X1, d.Y1, d.X2, d.Y2 = coords[0], coords[1], coords[2], coords[3]
			confBits, err := r.u32()
			if err != nil {
				return nil, err
			}
			d.Confidence = math.Float32frombits(confBits)
			cls, err := r.u8()
			if err != nil {
				return nil, err
			}
			d.Class = models.ClassID(cls)
			d.Timestamp = rec.Timestamp
			rec.Detections = append(rec.Detections, d)
		}
		pkg.Frames = append(pkg.Frames, rec)
	}

	metaLen, err := r.u32()
	if err != nil {
		return nil, err
	}
	metaJSON, err := r.bytes(int(metaLen))
	if err != nil {
		return nil, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &pkg.Meta); err != nil {
			return nil, fmt.Errorf("%w: meta not valid JSON", ErrCodec)
		}
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCodec, r.remaining())
	}
	return pkg, nil
}

func tsSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func secondsToTime(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrCodec, n, r.remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) f64() (float64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}
