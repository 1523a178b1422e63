package service

import (
	"time"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/core/port"
)

// inverter clocks may advance while a query block is answered
const INVERTER_BLOCK_TOLERANCE_SECONDS = 2

// AveragingWindow tracks when a measurement stream of a device crosses its averaging interval.
type AveragingWindow struct {
	Remainder        uint32
	CurrentTimestamp uint32
	TimestampValid   bool
	WindowReached    bool
}

// advance moves the window to timer. It returns true if timer starts a new measurement block.
func (w *AveragingWindow) advance(timer, elapsed, window, tolerance uint32) bool {
	boundary := false
	if !w.TimestampValid {
		w.TimestampValid = true
	} else if diff := int32(timer - w.CurrentTimestamp); diff > int32(tolerance) || -diff > int32(tolerance) {
		boundary = true
		w.Remainder += elapsed
		w.WindowReached = w.Remainder >= window
		if w.WindowReached {
			if window > 0 {
				w.Remainder %= window
			} else {
				w.Remainder = 0
			}
		}
	}
	w.CurrentTimestamp = timer
	return boundary
}

// windowKey keeps one window per stream and device, each device has its own timer base.
type windowKey struct {
	stream domain.MeasurementStream
	serial uint32
}

// AveragingProcessor averages meter and inverter measurements over their configured windows and emits them to a sink.
type AveragingProcessor struct {
	obisWindow     uint32
	inverterWindow uint32
	windows        map[windowKey]*AveragingWindow
	sink           port.MeasurementSink
	now            func() time.Time
}

// NewAveragingProcessor creates a processor. Both windows are given in milliseconds.
func NewAveragingProcessor(obisWindowMillis, inverterWindowMillis uint32, sink port.MeasurementSink) *AveragingProcessor {
	return &AveragingProcessor{
		obisWindow:     obisWindowMillis,
		inverterWindow: inverterWindowMillis,
		windows:        map[windowKey]*AveragingWindow{},
		sink:           sink,
		now:            time.Now,
	}
}

func (p *AveragingProcessor) window(stream domain.MeasurementStream, serial uint32) *AveragingWindow {
	key := windowKey{stream: stream, serial: serial}
	w, ok := p.windows[key]
	if !ok {
		w = &AveragingWindow{}
		p.windows[key] = w
	}
	return w
}

func (p *AveragingProcessor) ConsumeObis(device domain.Device, entry *domain.MeasurementEntry) {
	// meter timers are milliseconds
	p.consume(domain.STREAM_OBIS, device, entry, p.obisWindow, 0)
}

func (p *AveragingProcessor) ConsumeInverter(device domain.Device, entry *domain.MeasurementEntry) {
	// inverter timers are seconds
	p.consume(domain.STREAM_INVERTER, device, entry, p.inverterWindow/1000, INVERTER_BLOCK_TOLERANCE_SECONDS)
}

func (p *AveragingProcessor) consume(stream domain.MeasurementStream, device domain.Device, entry *domain.MeasurementEntry, window, tolerance uint32) {
	v := entry.Value
	w := p.window(stream, device.SerialNumber)
	first := w.advance(v.Timer, v.Elapsed, window, tolerance)

	if !w.WindowReached {
		if !entry.Type.Instantaneous {
			v.Accumulate()
		}
		return
	}

	value := v.Value
	if !entry.Type.Instantaneous {
		value = v.Average()
		v.ResetAverage()
	}
	p.sink.Consume(domain.MeasurementSample{
		Device:       device,
		Stream:       stream,
		Name:         entry.Name,
		Type:         entry.Type,
		Line:         entry.Line,
		Value:        value,
		Text:         entry.Text,
		Timer:        v.Timer,
		Time:         p.now(),
		FirstInBlock: first,
	})
}

// EndOfBlock tells the sink that all replies of an inverter query round were processed.
func (p *AveragingProcessor) EndOfBlock(device domain.Device, timer uint32) {
	p.sink.EndOfBlock(device, timer)
}

// Window returns the averaging window state of a stream of a device.
func (p *AveragingProcessor) Window(stream domain.MeasurementStream, serial uint32) (AveragingWindow, bool) {
	w, ok := p.windows[windowKey{stream: stream, serial: serial}]
	if !ok {
		return AveragingWindow{}, false
	}
	return *w, true
}
