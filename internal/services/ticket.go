package services

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"qr-attendance-bot/internal/models"
)

const pngDataURIPrefix = "data:image/png;base64,"

// ErrNotImage is returned when a ticket payload does not carry base64 image data
var ErrNotImage = errors.New("ticket payload is not an image")

// NormalizeTicket turns the backend payload into a displayable ticket.
// Full data URIs are kept; raw base64 PNG payloads get the PNG prefix.
func NormalizeTicket(code string, issuedAt time.Time, validFor int) models.QrTicket {
	code = strings.TrimSpace(code)
	image := code
	if !strings.HasPrefix(strings.ToLower(code), "data:") {
		image = pngDataURIPrefix + code
	}
	return models.QrTicket{
		Code:            code,
		Image:           image,
		IssuedAt:        issuedAt,
		ValidForSeconds: validFor,
	}
}

// TicketImage decodes the image bytes of a normalized ticket
func TicketImage(ticket models.QrTicket) ([]byte, error) {
	i := strings.Index(ticket.Image, ";base64,")
	if !strings.HasPrefix(ticket.Image, "data:") || i < 0 {
		return nil, ErrNotImage
	}
	data, err := base64.StdEncoding.DecodeString(ticket.Image[i+len(";base64,"):])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	if len(data) == 0 {
		return nil, ErrNotImage
	}
	return data, nil
}
