package log

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	prod := newLogger(&buf, "prod")
	prod.Debug().Msg("скрыто")
	if buf.Len() != 0 {
		t.Fatalf("debug не должен писаться вне dev: %s", buf.String())
	}

	dev := newLogger(&buf, "dev")
	dev.Debug().Str("context", "masjid-1").Msg("видно")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ожидали JSON строку: %v", err)
	}
	if entry["service"] != "feed-gateway" || entry["env"] != "dev" || entry["context"] != "masjid-1" {
		t.Fatalf("неожиданные поля: %v", entry)
	}
}
