package queue

import (
	"sync/atomic"
	"time"

	"masjid-feed/internal/domain"
)

// stamper разбирает тело сообщения и проставляет источник и порядковый номер.
type stamper struct {
	source string
	seq    atomic.Uint64
}

func (s *stamper) decode(body []byte) (domain.Frame, error) {
	frame, err := domain.DecodeFrame(body)
	if err != nil {
		return domain.Frame{}, err
	}
	frame.Source = s.source
	frame.Seq = s.seq.Add(1)
	frame.ReceivedAt = time.Now().UTC()
	return frame, nil
}
