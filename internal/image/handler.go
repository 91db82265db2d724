package image

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/pixvault/service/internal/response"
)

// Handler holds HTTP handlers for image upload endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new image Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// uploadResponse is the payload returned for a processed batch.
type uploadResponse struct {
	Message string         `json:"message"`
	Files   []UploadResult `json:"files"`
}

// maxFormMemory bounds how much of the multipart body is held in memory
// before spilling to temp files.
const maxFormMemory = 32 << 20

// Upload godoc
//
//	@Summary		Upload images
//	@Description	Accepts a multipart batch of image files, deduplicates them by content, and stores each unique one. Byte-identical content is reused instead of stored again.
//	@Tags			images
//	@Accept			mpfd
//	@Produce		json
//	@Param			files	formData	file	true	"image files (field is repeatable)"
//	@Success		201		{object}	response.Envelope{data=uploadResponse}
//	@Failure		400		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/images [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		response.BadRequest(w, "invalid multipart form")
		return
	}

	var batch []UploadInput
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			response.InternalError(w)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			response.InternalError(w)
			return
		}
		batch = append(batch, UploadInput{
			Filename: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Size:     int64(len(data)),
			Data:     data,
		})
	}

	results, err := h.svc.Process(r.Context(), batch)
	if err != nil {
		if IsAdmissionError(err) {
			response.BadRequest(w, err.Error())
			return
		}
		// Dependency failures stay generic: no storage identifiers leak out.
		log.Printf("upload: %v", err)
		response.InternalError(w)
		return
	}

	response.Created(w, uploadResponse{
		Message: summaryMessage(results),
		Files:   results,
	})
}

// summaryMessage reports the batch outcome, calling out how many files were
// served from already-stored content.
func summaryMessage(results []UploadResult) string {
	dupCount := 0
	for _, r := range results {
		if r.IsDuplicate {
			dupCount++
		}
	}

	msg := fmt.Sprintf("Successfully processed %d file(s)", len(results))
	if dupCount > 0 {
		plural := ""
		if dupCount > 1 {
			plural = "s"
		}
		msg += fmt.Sprintf(" (%d new, %d duplicate%s reused)", len(results)-dupCount, dupCount, plural)
	}
	return msg
}
