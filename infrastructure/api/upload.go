package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chat-relay/domain"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

// upload accepts one image and returns a durable URL. The relay treats
// the result as an opaque field on messages; compression and storage
// quota management live elsewhere.
func (a *API) upload(w http.ResponseWriter, r *http.Request, _ httprouter.Params, identity domain.Identity) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes)

	file, header, err := r.FormFile("image")
	if err != nil {
		a.fail(w, http.StatusBadRequest, "No image file provided", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		a.fail(w, http.StatusBadRequest, "Failed to read image", err)
		return
	}

	// Sniff the real content type; the client-declared one is not trusted.
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		a.fail(w, http.StatusBadRequest, "Only image files are allowed", nil)
		return
	}

	filename := fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.NewString(), mtype.Extension())
	if err := os.WriteFile(filepath.Join(a.uploadsDir, filename), data, 0o644); err != nil {
		a.fail(w, http.StatusInternalServerError, "Failed to store image", err)
		return
	}

	a.log.Info("Image uploaded",
		"user_id", identity.ID,
		"filename", filename,
		"original_name", header.Filename,
		"size", len(data),
		"mime_type", mtype.String())

	a.respond(w, http.StatusOK, map[string]any{
		"success":  true,
		"imageUrl": "/uploads/" + filename,
		"filename": filename,
		"size":     len(data),
	})
}
