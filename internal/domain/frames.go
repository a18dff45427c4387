package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FrameType описывает тип сообщения real-time транспорта.
type FrameType string

const (
	// FrameNewAnnouncement — новая запись ленты; неявный тип «голой» записи.
	FrameNewAnnouncement FrameType = "new_announcement"
	// FrameNewComment — новый комментарий к записи.
	FrameNewComment FrameType = "new_comment"
	// FrameLikeUpdate — обновление счётчика лайков.
	FrameLikeUpdate FrameType = "like_update"
	// FrameStatusUpdate — смена статуса модерации.
	FrameStatusUpdate FrameType = "status_update"
	// FrameDeleted — запись удалена на сервере.
	FrameDeleted FrameType = "announcement_deleted"
)

// Frame — одно сообщение транспорта после разбора JSON.
type Frame struct {
	Source     string         `json:"source"`
	Seq        uint64         `json:"seq"`
	Type       FrameType      `json:"type"`
	Data       map[string]any `json:"data"`
	ReceivedAt time.Time      `json:"received_at"`
}

// FrameHandler получает разобранные сообщения транспорта.
type FrameHandler func(Frame)

// FrameSource — независимый производитель сообщений (транспорт, очередь, поллер).
type FrameSource interface {
	Run(ctx context.Context, handle FrameHandler) error
}

// ConnStatus описывает состояние подписки транспорта.
type ConnStatus int32

const (
	StatusIdle ConnStatus = iota
	StatusConnecting
	StatusOpen
	StatusClosed
)

func (s ConnStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return "idle"
	}
}

// DecodeFrame разбирает текстовое сообщение транспорта.
// Принимается конверт {type, data} или «голая» запись: если на верхнем уровне
// есть и id, и title, весь объект считается data с типом new_announcement.
func DecodeFrame(raw []byte) (Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if obj == nil {
		return Frame{}, fmt.Errorf("%w: not an object", ErrMalformedFrame)
	}
	if obj["id"] != nil && obj["title"] != nil {
		return Frame{Type: FrameNewAnnouncement, Data: obj}, nil
	}
	data, ok := obj["data"].(map[string]any)
	if !ok {
		return Frame{}, fmt.Errorf("%w: no data", ErrMalformedFrame)
	}
	frameType, _ := obj["type"].(string)
	return Frame{Type: FrameType(strings.TrimSpace(frameType)), Data: data}, nil
}
