package handler

import (
	"os"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/samg2014/VirtualHand/internal/utils"
)

// NotificationAudioHandler serves the sound clients play when a request arrives.
type NotificationAudioHandler struct {
	path   string
	logger zerolog.Logger

	once        sync.Once
	data        []byte
	contentType string
	loadErr     error
}

// NewNotificationAudioHandler constructs the handler. The file is read on first request.
func NewNotificationAudioHandler(path string, logger zerolog.Logger) *NotificationAudioHandler {
	return &NotificationAudioHandler{
		path:   path,
		logger: logger.With().Str("component", "notification_audio_handler").Logger(),
	}
}

// Serve returns the audio asset with its detected content type.
func (h *NotificationAudioHandler) Serve(c *fiber.Ctx) error {
	h.once.Do(h.load)
	if h.loadErr != nil {
		return utils.SendError(c, fiber.StatusNotFound, "notification audio unavailable")
	}

	c.Set(fiber.HeaderContentType, h.contentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	return c.Send(h.data)
}

func (h *NotificationAudioHandler) load() {
	data, err := os.ReadFile(h.path)
	if err != nil {
		h.loadErr = err
		h.logger.Warn().Err(err).Str("path", h.path).Msg("notification audio not readable")
		return
	}

	mime := mimetype.Detect(data)
	if !mime.Is("audio/wav") && !mime.Is("audio/mpeg") && !mime.Is("audio/ogg") {
		h.logger.Warn().Str("path", h.path).Str("mime", mime.String()).Msg("notification audio has unexpected type")
	}

	h.data = data
	h.contentType = mime.String()
}
