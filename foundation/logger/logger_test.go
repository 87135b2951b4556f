package logger_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/gossipchain/foundation/logger"
)

func Test_EvHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")

	log, err := logger.New("TEST", path)
	if err != nil {
		t.Fatalf("Should be able to construct a logger: %v", err)
	}

	var got string
	ev := logger.EvHandler(log, func(v string, args ...any) { got = v })
	ev("worker: blk[%d]", 7)
	log.Sync()

	if got != "worker: blk[%d]" {
		t.Fatalf("Should hand the event to the extra handler: got %q", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Should be able to read the log: %v", err)
	}

	var entry struct {
		Msg     string `json:"msg"`
		Service string `json:"service"`
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("Should write json: %v", err)
	}

	if entry.Msg != "worker: blk[7]" || entry.Service != "TEST" {
		t.Fatalf("Should log the formatted event with the service: %+v", entry)
	}
}
