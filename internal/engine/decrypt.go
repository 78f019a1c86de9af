package engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"edgevision-worker-go/internal/evidence"
	"edgevision-worker-go/internal/models"
	"edgevision-worker-go/internal/processor"
	"edgevision-worker-go/internal/vault"
)

// DecryptResult is what the HTTP decrypt handler returns to the operator.
type DecryptResult struct {
	Filename   string  `json:"filename"`
	FrameCount int     `json:"frame_count"`
	Duration   float64 `json:"duration"`
	Hash       string  `json:"hash"`
	Format     string  `json:"format"` // "symmetric" or "hybrid"

	// Package holds the decoded frames for preview export. It is never
	// serialized to JSON.
	Package *models.EvidencePackage `json:"-"`
}

// Decrypt locates filename under the evidence root, opens the container
// with the matching vault (the hybrid magic selects the RSA path), verifies
// both integrity layers, and decodes the frame records. Vault errors are
// returned verbatim; the file on disk is never modified.
func (e *Engine) Decrypt(filename string) (*DecryptResult, error) {
	path, err := e.findEvidence(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: read evidence: %w", err)
	}

	var (
		payload []byte
		hash    string
		format  string
	)
	if vault.IsHybrid(data) {
		if e.hybrid == nil {
			return nil, fmt.Errorf("%w: hybrid container but no RSA private key configured", vault.ErrKeyMissing)
		}
		payload, hash, _, err = e.hybrid.Decrypt(data)
		format = "hybrid"
	} else {
		payload, hash, _, err = e.vlt.Decrypt(data)
		format = "symmetric"
	}
	if err != nil {
		return nil, err
	}

	pkg, err := evidence.DecodePayload(payload)
	if err != nil {
		return nil, err
	}

	duration := pkg.Meta.EndTime - pkg.Meta.StartTime
	if duration <= 0 && len(pkg.Frames) > 0 {
		duration = float64(len(pkg.Frames)) / float64(e.cfg.TargetFPS)
	}

	return &DecryptResult{
		Filename:   filename,
		FrameCount: len(pkg.Frames),
		Duration:   duration,
		Hash:       hash,
		Format:     format,
		Package:    pkg,
	}, nil
}

// ExportPreview re-encodes a decrypted package into a playable clip at
// outPath, optionally outlining the archived detections.
func (e *Engine) ExportPreview(pkg *models.EvidencePackage, outPath string, showBoxes bool) error {
	if len(pkg.Frames) == 0 {
		return fmt.Errorf("engine: empty evidence package")
	}

	first, err := processor.DecodeJPEG(pkg.Frames[0].JPEG)
	if err != nil {
		return fmt.Errorf("engine: preview: %w", err)
	}

	enc, err := e.opts.EncoderFactory(outPath, "mp4v", float64(e.cfg.TargetFPS), first.Width, first.Height)
	if err != nil {
		return fmt.Errorf("engine: preview encoder: %w", err)
	}
	defer enc.Close()

	for i := range pkg.Frames {
		frame, err := processor.DecodeJPEG(pkg.Frames[i].JPEG)
		if err != nil {
			return fmt.Errorf("engine: preview frame %d: %w", i, err)
		}
		if showBoxes {
			if err := processor.DrawDetectionBoxes(frame, pkg.Frames[i].Detections); err != nil {
				return err
			}
		}
		if err := enc.WriteFrame(frame); err != nil {
			return fmt.Errorf("engine: preview frame %d: %w", i, err)
		}
	}
	return nil
}

// findEvidence resolves a bare filename inside the evidence tree. Only
// basenames are accepted, so the handler cannot be walked out of the root.
func (e *Engine) findEvidence(filename string) (string, error) {
	if filename != filepath.Base(filename) || !strings.HasSuffix(filename, ".enc") {
		return "", ErrEvidenceNotFound
	}

	var found string
	err := filepath.WalkDir(e.cfg.EvidencePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if d.Name() == filename {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("engine: scan evidence dir: %w", err)
	}
	if found == "" {
		return "", ErrEvidenceNotFound
	}
	return found, nil
}
