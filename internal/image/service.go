package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/pixvault/service/internal/storage"
)

// UploadInput is one file received from a client, held in memory for the
// duration of the request. It is never persisted as-is.
type UploadInput struct {
	Filename string
	MimeType string
	Size     int64
	Data     []byte
}

// UploadResult describes the outcome for one file in a processed batch.
type UploadResult struct {
	OriginalName string `json:"originalName"`
	StoredName   string `json:"storedName"`
	URL          string `json:"url"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mimeType"`
	IsDuplicate  bool   `json:"isDuplicate"`
}

// AdmissionError reports a fault in the uploaded batch itself (empty batch,
// disallowed type, oversized file). Its message names the offending file and
// limit and is safe to return to the client verbatim.
type AdmissionError struct {
	Reason string
}

func (e *AdmissionError) Error() string {
	return e.Reason
}

func admissionf(format string, args ...interface{}) *AdmissionError {
	return &AdmissionError{Reason: fmt.Sprintf(format, args...)}
}

// IsAdmissionError returns true when the error is a client-side admission failure.
func IsAdmissionError(err error) bool {
	var ae *AdmissionError
	return errors.As(err, &ae)
}

// allowedMimeTypes is the fixed admission allow-list.
var allowedMimeTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

// Service contains the ingestion pipeline: admission checks, content
// hashing, duplicate detection, and the store-then-record path for new
// content.
type Service struct {
	store   Store
	blobs   storage.Storage
	folder  string
	maxSize int64
}

// NewService creates a Service storing new blobs under folder and rejecting
// files larger than maxSize bytes.
func NewService(store Store, blobs storage.Storage, folder string, maxSize int64) *Service {
	return &Service{
		store:   store,
		blobs:   blobs,
		folder:  strings.Trim(folder, "/"),
		maxSize: maxSize,
	}
}

// Process runs the ingestion pipeline over a batch of uploads, in order.
// Admission is all-or-nothing: the whole batch is checked before anything is
// written, so a single bad file rejects the request with nothing persisted.
// Per file, byte-identical content already on record is reused (no blob or
// metadata write); new content is pushed to object storage and then recorded.
func (s *Service) Process(ctx context.Context, batch []UploadInput) ([]UploadResult, error) {
	if len(batch) == 0 {
		return nil, &AdmissionError{Reason: "no files provided"}
	}

	for _, in := range batch {
		if err := s.validate(in); err != nil {
			return nil, err
		}
	}

	results := make([]UploadResult, 0, len(batch))
	for _, in := range batch {
		hash := hashContent(in.Data)

		existing, err := s.store.FindByHash(ctx, hash)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check for duplicate of %q: %w", in.Filename, err)
		}
		if existing != nil {
			log.Printf("upload: duplicate detected: %s -> %s", in.Filename, existing.StorageKey)
			results = append(results, resultFrom(in.Filename, existing, true))
			continue
		}

		img, lostRace, err := s.storeNew(ctx, in, hash)
		if err != nil {
			return nil, err
		}
		if !lostRace {
			log.Printf("upload: stored new file: %s (original: %s)", img.StorageKey, in.Filename)
		}
		results = append(results, resultFrom(in.Filename, img, lostRace))
	}
	return results, nil
}

// validate applies the admission policy to a single file. Pure check, no I/O.
func (s *Service) validate(in UploadInput) error {
	if !mimeAllowed(in.MimeType) {
		return admissionf("unsupported file type: %s. Allowed types: %s",
			in.MimeType, strings.Join(allowedMimeTypes, ", "))
	}
	if in.Size > s.maxSize {
		return admissionf("file %q exceeds the size limit of %d bytes", in.Filename, s.maxSize)
	}
	return nil
}

// storeNew uploads the bytes and records the new image. When the insert hits
// the content-hash unique constraint, a concurrent identical upload won the
// race; the winner's record is returned with lostRace=true and the blob just
// written is left orphaned (no reconciliation — same as a create failure
// after a successful upload, which is a known, accepted gap).
func (s *Service) storeNew(ctx context.Context, in UploadInput, hash string) (img *Image, lostRace bool, err error) {
	key := s.folder + "/" + uuid.NewString() + strings.ToLower(filepath.Ext(in.Filename))

	if err := s.blobs.Upload(ctx, key, bytes.NewReader(in.Data), in.Size, in.MimeType); err != nil {
		return nil, false, fmt.Errorf("store bytes of %q: %w", in.Filename, err)
	}

	img, err = s.store.Create(ctx, &Image{
		OriginalName: in.Filename,
		ContentHash:  hash,
		URL:          s.blobs.PublicURL(key),
		StorageKey:   key,
		Size:         in.Size,
		MimeType:     in.MimeType,
	})
	if errors.Is(err, ErrHashExists) {
		existing, ferr := s.store.FindByHash(ctx, hash)
		if ferr != nil {
			return nil, false, fmt.Errorf("refetch after hash conflict for %q: %w", in.Filename, ferr)
		}
		log.Printf("upload: lost insert race for %s, reusing %s", in.Filename, existing.StorageKey)
		return existing, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("record %q: %w", in.Filename, err)
	}
	return img, false, nil
}

// resultFrom copies the record's stored identity into a per-file result.
// For duplicates, size and mime type come from the record, not the upload.
func resultFrom(originalName string, img *Image, duplicate bool) UploadResult {
	return UploadResult{
		OriginalName: originalName,
		StoredName:   img.StorageKey,
		URL:          img.URL,
		Size:         img.Size,
		MimeType:     img.MimeType,
		IsDuplicate:  duplicate,
	}
}

func mimeAllowed(mimeType string) bool {
	for _, t := range allowedMimeTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}
