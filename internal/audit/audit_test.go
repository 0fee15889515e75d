package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/logging"
)

func TestLogger_WritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(Config{LogDir: dir, MaxSize: 1, MaxBackups: 1, MaxAge: 1})
	require.NoError(t, err)

	ctx := logging.WithRequestID(context.Background(), "req-1")
	require.NoError(t, l.Log(ctx, Event{EventType: TradeOpened, AccountID: "a1", TradeID: "t1", Success: true}))
	require.NoError(t, l.Log(ctx, Event{EventType: TradeClosed, AccountID: "a1", TradeID: "t1", Success: true,
		Details: map[string]interface{}{"pnl": "12.50"}}))
	require.NoError(t, l.Close())

	f, err := os.Open(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		events = append(events, e)
	}
	require.Len(t, events, 2)
	assert.Equal(t, TradeOpened, events[0].EventType)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.NotEmpty(t, events[0].SessionID)
	assert.Equal(t, events[0].SessionID, events[1].SessionID)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, "12.50", events[1].Details["pnl"])
}

func TestRecorder(t *testing.T) {
	var r Recorder
	var s Sink = &r
	require.NoError(t, s.Log(context.Background(), Event{EventType: Deposit}))
	require.NoError(t, s.Log(context.Background(), Event{EventType: Withdrawal}))
	assert.Equal(t, []EventType{Deposit, Withdrawal}, r.Types())
	assert.NoError(t, Nop{}.Log(context.Background(), Event{}))
}
