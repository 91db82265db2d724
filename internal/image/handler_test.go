package image

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
)

type testFile struct {
	name string
	mime string
	data []byte
}

func multipartBody(t *testing.T, files []testFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.name))
		h.Set("Content-Type", f.mime)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func doUpload(t *testing.T, h *Handler, files []testFile) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, files)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/images", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)
	return rec
}

type uploadEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Message string         `json:"message"`
		Files   []UploadResult `json:"files"`
	} `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) uploadEnvelope {
	t.Helper()
	var env uploadEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

func TestUploadHandler_Created(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	rec := doUpload(t, h, []testFile{{"cat.png", "image/png", []byte("png bytes")}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Errorf("expected success envelope, got error %q", env.Error)
	}
	if env.Data.Message != "Successfully processed 1 file(s)" {
		t.Errorf("message = %q", env.Data.Message)
	}
	if len(env.Data.Files) != 1 || env.Data.Files[0].IsDuplicate {
		t.Errorf("files = %+v, want one new file", env.Data.Files)
	}
}

func TestUploadHandler_DuplicateSummary(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	data := []byte("identical bytes")
	rec := doUpload(t, h, []testFile{
		{"a.png", "image/png", data},
		{"b.png", "image/png", data},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	env := decodeEnvelope(t, rec)
	if !strings.Contains(env.Data.Message, "(1 new, 1 duplicate reused)") {
		t.Errorf("message = %q, want the duplicate summary", env.Data.Message)
	}
	if !env.Data.Files[1].IsDuplicate {
		t.Error("second file must be reported as duplicate")
	}
}

func TestUploadHandler_EmptyForm(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	rec := doUpload(t, h, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error != "no files provided" {
		t.Errorf("error = %q, want %q", env.Error, "no files provided")
	}
}

func TestUploadHandler_UnsupportedType(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	rec := doUpload(t, h, []testFile{{"notes.txt", "text/plain", []byte("text")}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if !strings.Contains(env.Error, "unsupported file type") {
		t.Errorf("error = %q, want the admission reason", env.Error)
	}
}

func TestUploadHandler_DependencyFailureIsGeneric(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeStorage()
	blobs.uploadErr = fmt.Errorf("minio: connection refused")
	h := NewHandler(NewService(store, blobs, "uploads", 5<<20))

	rec := doUpload(t, h, []testFile{{"cat.png", "image/png", []byte("png bytes")}})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error != "internal server error" {
		t.Errorf("error = %q, internal detail must not leak", env.Error)
	}
}
