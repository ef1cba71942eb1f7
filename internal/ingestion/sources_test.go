package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-stats-engine/internal/domain"
)

const sampleLog = `# price feed
{"kind":"price_tick","block_number":1,"block_timestamp":100,"tx_hash":"0xA","log_index":0,"price_tick":{"token":"0xT","feed":"fast_price","price":"1050","decimals":2}}

{"kind":"transfer","block_number":2,"block_timestamp":160,"tx_hash":"0xB","log_index":3,"transfer":{"token":"0xG","from":"0x0000000000000000000000000000000000000000","to":"0x1","amount":"5"}}
`

func TestReadEvents(t *testing.T) {
	events, err := ReadEvents(strings.NewReader(sampleLog))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, domain.EventPriceTick, events[0].Kind)
	require.NotNil(t, events[0].PriceTick)
	assert.Equal(t, "1050", events[0].PriceTick.Price.String())
	assert.Equal(t, domain.PriceKindFast, events[0].PriceTick.Feed)

	assert.Equal(t, domain.EventTransfer, events[1].Kind)
	assert.Equal(t, int64(2), events[1].BlockNumber)
	require.NotNil(t, events[1].Transfer)
	assert.True(t, events[1].Transfer.IsMint())
}

func TestReadEvents_ReportsLine(t *testing.T) {
	_, err := ReadEvents(strings.NewReader("{\"kind\":\"transfer\"}\n\n{not json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func drain(ch <-chan *domain.Event) []*domain.Event {
	var out []*domain.Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestFileSource(t *testing.T) {
	src := NewFileSource(writeLog(t, sampleLog), 1)

	ch, err := src.Subscribe(context.Background())
	require.NoError(t, err)

	events := drain(ch)
	require.Len(t, events, 2)
	assert.Equal(t, "0xA", events[0].TxHash)
	assert.NoError(t, src.Err())
}

func TestFileSource_DecodeError(t *testing.T) {
	src := NewFileSource(writeLog(t, sampleLog+"garbage\n"), 4)

	ch, err := src.Subscribe(context.Background())
	require.NoError(t, err)

	assert.Len(t, drain(ch), 2)
	require.Error(t, src.Err())
	assert.Contains(t, src.Err().Error(), "line 5")
}

func TestFileSource_MissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "missing.jsonl"), 1)

	_, err := src.Subscribe(context.Background())
	assert.Error(t, err)
}

func TestFileSource_Cancel(t *testing.T) {
	src := NewFileSource(writeLog(t, sampleLog), 1)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := src.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	// the channel closes without a recorded error
	drain(ch)
	assert.NoError(t, src.Err())
}
