package services

import (
	"errors"
	"testing"
	"time"

	"qr-attendance-bot/internal/models"
)

func TestNormalizeTicket(t *testing.T) {
	issued := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		code      string
		wantImage string
	}{
		{name: "Raw base64", code: "iVBORw0KGgo=", wantImage: "data:image/png;base64,iVBORw0KGgo="},
		{name: "Data URI kept", code: "data:image/jpeg;base64,/9j/4AAQ", wantImage: "data:image/jpeg;base64,/9j/4AAQ"},
		{name: "Whitespace trimmed", code: "  abc=\n", wantImage: "data:image/png;base64,abc="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTicket(tt.code, issued, 10)
			if got.Image != tt.wantImage {
				t.Errorf("Image = %q, want %q", got.Image, tt.wantImage)
			}
			if !got.IssuedAt.Equal(issued) || got.ValidForSeconds != 10 {
				t.Errorf("ticket = %+v", got)
			}
		})
	}
}

func TestTicketImage(t *testing.T) {
	data, err := TicketImage(NormalizeTicket("aGVsbG8=", time.Now(), 10))
	if err != nil {
		t.Fatalf("TicketImage() = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("data = %q, want hello", data)
	}

	for _, ticket := range []models.QrTicket{
		{Image: "TICKET-123"},
		{Image: "data:image/png;base64,###"},
		{Image: "data:text/plain,hello"},
		{Image: "data:image/png;base64,"},
	} {
		if _, err := TicketImage(ticket); !errors.Is(err, ErrNotImage) {
			t.Errorf("TicketImage(%q) error = %v, want ErrNotImage", ticket.Image, err)
		}
	}
}
