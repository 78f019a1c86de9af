package models

import "time"

// FrameRecord is one archived evidence frame: the pre-blur image encoded as
// JPEG plus the detections that were found in it. The blurred variant never
// enters a FrameRecord.
type FrameRecord struct {
	JPEG       []byte
	Detections []Detection
	Timestamp  time.Time
}

// SegmentMeta is the metadata block serialized at the tail of every evidence
// payload and mirrored into the encrypted container header.
type SegmentMeta struct {
	FrameCount      int     `json:"frame_count"`
	StartTime       float64 `json:"start_time"`
	EndTime         float64 `json:"end_time"`
	TotalDetections int     `json:"total_detections"`
	CameraID        string  `json:"camera"`
	JPEGQuality     int     `json:"jpeg_quality"`
}

// EvidencePackage is a closed evidence segment awaiting encryption. Ownership
// transfers to the flush worker when the segment closes.
type EvidencePackage struct {
	Frames []FrameRecord
	Meta   SegmentMeta
}
