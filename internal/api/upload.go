package api

import (
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
)

const maxUploadBytes = 25 << 20

type UploadResponse struct {
	Attachment interface{} `json:"attachment"`
}

func (s *ConverseApp) upload(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserId(r.Context()); !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		errResp := NewValidationError("upload too large or malformed")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errResp := NewValidationError("file field is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer file.Close()

	attachment, err := s.store.Save(header.Filename, file)
	if err != nil {
		s.log.Println("save upload:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, UploadResponse{Attachment: attachment})
}

func (s *ConverseApp) serveUpload(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	rc, err := s.store.Open(key)
	if err != nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer rc.Close()

	// sniff the content type from the first chunk before streaming the rest
	head := make([]byte, 3072)
	n, err := io.ReadFull(rc, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	head = head[:n]

	w.Header().Set("Content-Type", mimetype.Detect(head).String())
	if _, err := w.Write(head); err != nil {
		return
	}
	io.Copy(w, rc)
}
