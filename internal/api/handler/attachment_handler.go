package handler

import (
	"Huddle/internal/api/dto"
	"Huddle/internal/pkg/consts"
	"Huddle/internal/pkg/minio"
	"Huddle/internal/pkg/response"
	"Huddle/internal/service"
	"io"
	log "log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxAttachmentBytes = 20 << 20

type AttachmentHandler struct{}

func NewAttachmentHandler() *AttachmentHandler {
	return &AttachmentHandler{}
}

// Upload stores an attachment and returns the object key for a send command.
func (s *AttachmentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil || file.Size == 0 || file.Size > maxAttachmentBytes {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	reader, err := file.Open()
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	defer func() { _ = reader.Close() }()

	head := make([]byte, 512)
	n, _ := io.ReadFull(reader, head)
	contentType := http.DetectContentType(head[:n])
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		response.Error(c, err)
		return
	}
	// browser voice recordings sniff as video/webm or nothing at all
	declared := file.Header.Get("Content-Type")
	if strings.HasPrefix(declared, consts.MimePrefixAudio+"/") &&
		(contentType == "video/webm" || contentType == "application/octet-stream") {
		contentType = declared
	}

	objectName := time.Now().Format("2006/01/02/") + uuid.NewString() + path.Ext(file.Filename)
	fileKey, err := minio.UploadAttachment(c.Request.Context(), objectName, reader, file.Size, contentType)
	if err != nil {
		log.ErrorContext(c.Request.Context(), "MinIO upload failed", "err", err)
		response.Error(c, service.UnExpectedError)
		return
	}

	log.InfoContext(c.Request.Context(), "attachment uploaded", "fileKey", fileKey, "type", contentType)
	response.Success(c, dto.AttachmentUploadDTO{
		URL:      fileKey,
		Name:     file.Filename,
		MimeType: contentType,
		Size:     file.Size,
	})
}
