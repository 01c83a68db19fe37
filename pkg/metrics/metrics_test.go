package metrics

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

func TestCycleMetrics_ConcurrentAdds(t *testing.T) {
	m := &CycleMetrics{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.AddFilesCopied(1)
			m.AddBytesCopied(1024)
			m.AddFilesDeleted(2)
			m.AddFilesUpToDate(3)
			m.AddErrors(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, Summary{
		FilesCopied:   50,
		BytesCopied:   50 * 1024,
		FilesDeleted:  100,
		FilesUpToDate: 150,
		Errors:        50,
	}, m.Snapshot())

	m.Reset()
	assert.Equal(t, Summary{}, m.Snapshot())
}

func TestCycleMetrics_Log(t *testing.T) {
	var buf bytes.Buffer
	plog.SetOutput(&buf)
	t.Cleanup(func() { plog.SetOutput(io.Discard) })

	m := &CycleMetrics{}
	m.AddFilesCopied(2)
	m.AddBytesCopied(2048)
	m.Log()

	out := buf.String()
	assert.True(t, strings.Contains(out, "filesCopied=2"), out)
	assert.True(t, strings.Contains(out, "bytesCopied=\"2.0 KiB\""), out)
}

func TestNoopMetrics(t *testing.T) {
	var m Metrics = &NoopMetrics{}
	m.AddFilesCopied(10)
	m.Log()
	assert.Equal(t, Summary{}, m.Snapshot())
}
