package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// MediaHandler serves stored proof files to authenticated users. With
// accelRedirect enabled it only emits an X-Accel-Redirect header and leaves
// the file transfer to the reverse proxy.
type MediaHandler struct {
	mediaRoot     string
	accelRedirect bool
}

func NewMediaHandler(mediaRoot string, accelRedirect bool) *MediaHandler {
	return &MediaHandler{
		mediaRoot:     mediaRoot,
		accelRedirect: accelRedirect,
	}
}

func (h *MediaHandler) ServeProof(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("filepath"), "/")

	clean := filepath.Clean(rel)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	full := filepath.Join(h.mediaRoot, clean)
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	if h.accelRedirect {
		c.Header("X-Accel-Redirect", "/protected/"+filepath.ToSlash(clean))
		c.Status(http.StatusOK)
		return
	}

	c.File(full)
}
