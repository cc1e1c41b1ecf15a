package handler

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/tixgate/tixgate/internal/signedurl"
)

// UploadsHandler mints signed download links for protected uploaded files.
// Serving the files themselves happens behind the signed-URL gate on the
// static mount; this handler only issues the grants.
type UploadsHandler struct {
	signer    *signedurl.Signer
	linkTTL   time.Duration
	mountPath string
	protected []string
}

// NewUploadsHandler creates an UploadsHandler. mountPath is where the
// static file server is mounted (e.g. "/uploads").
func NewUploadsHandler(signer *signedurl.Signer, linkTTL time.Duration, mountPath string, protected []string) *UploadsHandler {
	if linkTTL <= 0 {
		linkTTL = signedurl.DefaultTTL
	}
	return &UploadsHandler{
		signer:    signer,
		linkTTL:   linkTTL,
		mountPath: strings.TrimSuffix(mountPath, "/"),
		protected: protected,
	}
}

// signURLRequest is the expected payload for SignURL.
type signURLRequest struct {
	Path       string `json:"path"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

// signURLResponse carries the time-limited grant.
type signURLResponse struct {
	URL       string `json:"url"`
	Path      string `json:"path"`
	ExpiresIn int    `json:"expires_in_seconds"`
	Protected bool   `json:"protected"`
}

// SignURL mints a signed link for an uploaded file. The path is
// resource-relative; traversal sequences and absolute paths are rejected
// before any signature is computed.
// POST /api/v1/uploads/sign
func (h *UploadsHandler) SignURL(w http.ResponseWriter, r *http.Request) {
	var req signURLRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	filePath, ok := cleanFilePath(req.Path)
	if !ok {
		writeDenial(w, http.StatusBadRequest, "invalid_path", "Invalid file path")
		return
	}

	ttl := h.linkTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	fragment := h.signer.Issue(filePath, ttl)
	writeJSON(w, http.StatusOK, signURLResponse{
		URL:       h.mountPath + "/" + filePath + fragment,
		Path:      filePath,
		ExpiresIn: int(ttl.Seconds()),
		Protected: signedurl.Protected(filePath, h.protected),
	})
}

// cleanFilePath normalizes a client-supplied relative path and reports
// whether it stays inside the uploads root.
func cleanFilePath(p string) (string, bool) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", false
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}
