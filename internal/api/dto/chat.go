package dto

type DMKeyReq struct {
	A string `form:"a" binding:"required"`
	B string `form:"b" binding:"required"`
}

type DMKeyDTO struct {
	Key string `json:"key"`
}

// SentMessageDTO is the ack payload of a send.
type SentMessageDTO struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	Text            string `json:"text"`
	ClientTimestamp int64  `json:"timestamp"`
}

type PinResultDTO struct {
	MessageID string `json:"messageId"`
	Pinned    bool   `json:"pinned"`
}

// AttachmentUploadDTO is returned by the upload endpoint; URL is the object
// key to put into a send command.
type AttachmentUploadDTO struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}
