package output

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lampd/internal/color"
	"github.com/dokzlo13/lampd/internal/led"
)

func readAttr(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.TrimSpace(string(b))
}

// fakeChip lays out a pwmchip directory with the channel directories already exported.
func fakeChip(t *testing.T, channels ...int) string {
	t.Helper()
	chip := t.TempDir()
	for _, ch := range channels {
		require.NoError(t, os.MkdirAll(filepath.Join(chip, "pwm"+strconv.Itoa(ch)), 0o755))
	}
	return chip
}

func TestSysfsPWMWritesDutyCycles(t *testing.T) {
	chip := fakeChip(t, 0, 1, 2)

	p, err := OpenSysfsPWM(SysfsConfig{
		Chip:     chip,
		Channels: [3]int{0, 1, 2},
		Period:   10 * time.Microsecond,
	})
	require.NoError(t, err)

	assert.Equal(t, "10000", readAttr(t, filepath.Join(chip, "pwm0", "period")))
	assert.Equal(t, "1", readAttr(t, filepath.Join(chip, "pwm2", "enable")))

	require.NoError(t, p.Write(color.RGB{R: 1, G: 0.5, B: -3}))

	assert.Equal(t, "10000", readAttr(t, filepath.Join(chip, "pwm0", "duty_cycle")))
	assert.Equal(t, "5000", readAttr(t, filepath.Join(chip, "pwm1", "duty_cycle")))
	assert.Equal(t, "0", readAttr(t, filepath.Join(chip, "pwm2", "duty_cycle")), "negative levels clamp to off")

	require.NoError(t, p.Close())
	assert.Equal(t, "0", readAttr(t, filepath.Join(chip, "pwm0", "enable")))
}

func TestSysfsPWMExportsMissingChannel(t *testing.T) {
	chip := fakeChip(t, 0, 1)

	// pwm2 does not exist and export is a plain file, so the directory never appears
	_, err := OpenSysfsPWM(SysfsConfig{Chip: chip, Channels: [3]int{0, 1, 2}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteFailed))
	assert.Equal(t, "2", readAttr(t, filepath.Join(chip, "export")))
}

func TestSysfsPWMWriteFailure(t *testing.T) {
	chip := fakeChip(t, 0, 1, 2)
	p, err := OpenSysfsPWM(SysfsConfig{Chip: chip, Channels: [3]int{0, 1, 2}})
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(chip, "pwm1")))

	err = p.Write(color.RGB{R: 0.2, G: 0.2, B: 0.2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteFailed))
	assert.Contains(t, err.Error(), "green")
}

type publishCall struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	mu      sync.Mutex
	calls   []publishCall
	err     error
	started int
	block   chan struct{}
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	f.started++
	block, err := f.block, f.err
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, publishCall{topic, payload, qos, retained})
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakePublisher) inFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakePublisher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakePublisher) last(t *testing.T) color.RGB {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	var got color.RGB
	require.NoError(t, json.Unmarshal(f.calls[len(f.calls)-1].payload, &got))
	return got
}

func runMQTT(t *testing.T, m *MQTT) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestMQTTPublishesDistinctLevels(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMQTT(pub, "lampd/AA:BB/rgb", 0, 1000)
	runMQTT(t, m)

	require.NoError(t, m.Write(color.RGB{R: 1, G: 0, B: 0}))
	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, time.Millisecond)
	pub.mu.Lock()
	assert.Equal(t, "lampd/AA:BB/rgb", pub.calls[0].topic)
	assert.False(t, pub.calls[0].retained)
	pub.mu.Unlock()

	require.NoError(t, m.Write(color.RGB{R: 0.9999, G: 0, B: 0})) // same 8-bit level
	require.NoError(t, m.Write(color.RGB{R: 0, G: 0, B: 2}))
	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, color.RGB{R: 0, G: 0, B: 1}, pub.last(t))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, pub.count())
}

func TestMQTTPublishFailureReportedOnNextWrite(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	m := NewMQTT(pub, "t", 0, 1000)
	runMQTT(t, m)

	require.Eventually(t, func() bool {
		return errors.Is(m.Write(color.RGB{R: 1}), ErrWriteFailed)
	}, time.Second, time.Millisecond)

	// a failed color is not remembered as sent, so it goes out once the broker is back
	pub.setErr(nil)
	require.Eventually(t, func() bool {
		_ = m.Write(color.RGB{R: 1})
		return pub.count() == 1
	}, time.Second, time.Millisecond)
}

func TestMQTTSlowBrokerDoesNotBlockActor(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{})}
	m := NewMQTT(pub, "t", 0, 1000)
	runMQTT(t, m)

	actor := led.NewActor(m)
	require.NoError(t, actor.Tick())
	require.Eventually(t, func() bool { return pub.inFlight() == 1 }, time.Second, time.Millisecond)

	// the first publish is stuck; the actor keeps answering
	start := time.Now()
	actor.SetHue(120)
	require.NoError(t, actor.Tick())
	_ = actor.Status()
	require.NoError(t, actor.SetRGB(color.RGB{B: 1}))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(pub.block)
	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, time.Millisecond)
	got := pub.last(t)
	assert.InDelta(t, 1, got.B, 1e-9, "queued colors collapse into the newest")
	assert.InDelta(t, 0, got.R, 1e-9)
}

func TestLogNeverFails(t *testing.T) {
	l := NewLog()
	assert.NoError(t, l.Write(color.RGB{R: 1}))
	assert.NoError(t, l.Write(color.RGB{R: 1}))
}

func TestDeferredReplaysOnAttach(t *testing.T) {
	d := NewDeferred(NewLog())
	require.NoError(t, d.Write(color.RGB{B: 1}))
	assert.False(t, d.Attached())

	pub := &fakePublisher{}
	m := NewMQTT(pub, "lampd/dev/rgb", 0, 1000)
	runMQTT(t, m)

	require.NoError(t, d.Attach(m))
	assert.True(t, d.Attached())
	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, time.Millisecond, "last color replayed")
	assert.Equal(t, color.RGB{B: 1}, pub.last(t))

	require.NoError(t, d.Write(color.RGB{R: 1}))
	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, color.RGB{R: 1}, pub.last(t))
}
