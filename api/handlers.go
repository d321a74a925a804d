// Package api is the network-facing boundary: request validation, job
// creation through the worker pool, and response rendering (JSON status,
// converted bytes, or a QR image of the retrieval URL).
package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"converter/config"
	"converter/errs"
	"converter/models"
	"converter/qr"
	"converter/storage"
	"converter/worker"
)

type Handler struct {
	Config  *config.Config
	Pool    *worker.Pool
	Storage storage.Storage
}

func RegisterHandlers(r *gin.Engine, h *Handler) {
	r.POST("/jobs", h.submitJob)
	r.GET("/jobs/:id", h.getStatus)
	r.GET("/jobs/:id/result", h.getResult)
	r.GET("/jobs/:id/code", h.getCode)
	r.DELETE("/jobs/:id", h.cancelJob)
}

func (h *Handler) submitJob(c *gin.Context) {
	if c.Request.ContentLength > 0 && c.Request.ContentLength > h.Config.MaxInputBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "input exceeds maximum size"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Config.MaxInputBytes)

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file upload"})
		return
	}
	if file.Size > h.Config.MaxInputBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "input exceeds maximum size"})
		return
	}

	targetFormat := models.NormalizeFormat(c.PostForm("target_format"))
	if targetFormat == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_format is required"})
		return
	}
	sourceFormat := models.NormalizeFormat(c.PostForm("source_format"))
	if sourceFormat == "" {
		sourceFormat = models.NormalizeFormat(filepath.Ext(file.Filename))
	}

	// Allow-list check happens here; adapter coverage is the pool's call.
	if models.KindOfFormat(sourceFormat) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("source format %q not allowed", sourceFormat)})
		return
	}
	if models.KindOfFormat(targetFormat) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("target format %q not allowed", targetFormat)})
		return
	}

	opts, err := parseOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inputPath := filepath.Join(h.Config.WorkDir, "inputs",
		fmt.Sprintf("%s.%s", uuid.New().String(), sourceFormat))
	if err := c.SaveUploadedFile(file, inputPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}

	job, err := h.Pool.Submit(c.Request.Context(), inputPath, sourceFormat, targetFormat, opts)
	if err != nil {
		os.Remove(inputPath)
		switch {
		case errors.Is(err, errs.ErrUnsupportedFormat):
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
		case errors.Is(err, errs.ErrOverloaded):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	if c.PostForm("mode") != "sync" {
		c.JSON(http.StatusAccepted, job)
		return
	}
	h.respondSync(c, job.ID)
}

// respondSync blocks on the job with the gateway's own outer bound so a
// sync caller always gets a definite response, independent of the
// per-tool timeout.
func (h *Handler) respondSync(c *gin.Context, jobID string) {
	job, err := h.Pool.Await(c.Request.Context(), jobID, h.Config.SyncWaitTimeout)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !job.Status.Terminal() {
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error": "conversion still in progress; poll the job status",
			"id":    job.ID,
		})
		return
	}
	if job.Status == models.StatusFailed {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     job.ErrorMessage,
			"errorKind": job.ErrorKind,
			"id":        job.ID,
		})
		return
	}

	if isTruthy(c.PostForm("code")) {
		h.writeCode(c, job)
		return
	}
	h.writeResult(c, job)
}

func (h *Handler) getStatus(c *gin.Context) {
	job, err := h.Pool.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) getResult(c *gin.Context) {
	job, ok := h.succeededJob(c)
	if !ok {
		return
	}
	h.writeResult(c, job)
}

func (h *Handler) getCode(c *gin.Context) {
	job, ok := h.succeededJob(c)
	if !ok {
		return
	}
	h.writeCode(c, job)
}

func (h *Handler) cancelJob(c *gin.Context) {
	if err := h.Pool.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancellation requested"})
}

// succeededJob loads the job and rejects anything that doesn't yet have a
// retrievable result.
func (h *Handler) succeededJob(c *gin.Context) (*models.ConversionJob, bool) {
	job, err := h.Pool.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return nil, false
	}
	switch job.Status {
	case models.StatusSucceeded:
		return job, true
	case models.StatusFailed:
		c.JSON(http.StatusConflict, gin.H{"error": job.ErrorMessage, "errorKind": job.ErrorKind})
	default:
		c.JSON(http.StatusConflict, gin.H{"error": "conversion not finished", "status": job.Status})
	}
	return nil, false
}

func (h *Handler) writeResult(c *gin.Context, job *models.ConversionJob) {
	reader, err := h.Storage.Open(c.Request.Context(), job.OutputRef)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "artifact unavailable"})
		return
	}
	defer reader.Close()
	c.DataFromReader(http.StatusOK, job.OutputBytes, contentTypeFor(job.TargetFormat), reader, nil)
}

func (h *Handler) writeCode(c *gin.Context, job *models.ConversionJob) {
	png, err := qr.Emit(h.resultURL(job.ID))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) resultURL(jobID string) string {
	return fmt.Sprintf("%s/jobs/%s/result", h.Config.PublicBaseURL, jobID)
}

func parseOptions(c *gin.Context) (models.Options, error) {
	var opts models.Options
	for _, field := range []struct {
		name string
		dst  *int
	}{
		{"width", &opts.Width},
		{"height", &opts.Height},
		{"quality", &opts.Quality},
	} {
		raw := c.PostForm(field.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return opts, fmt.Errorf("invalid %s: %q", field.name, raw)
		}
		*field.dst = v
	}
	return opts, nil
}

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

var contentTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"webp": "image/webp",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
}

func contentTypeFor(format string) string {
	if ct, ok := contentTypes[format]; ok {
		return ct
	}
	return "application/octet-stream"
}
