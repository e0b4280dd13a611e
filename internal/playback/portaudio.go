package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/callpilot/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

const sinkFrameSamples = 1024

// Sink is the PortAudio-backed Output writing to the default output device.
// It keeps one stream open for its whole lifetime; the scheduler guarantees
// booked chunks never overlap, so a single writer mutex is enough.
type Sink struct {
	sampleRate int
	channels   int

	mu     sync.Mutex
	stream *portaudio.Stream
	buffer []int16
	closed bool
}

var _ Output = (*Sink)(nil)

// NewSink opens the default output device at the given format.
func NewSink(sampleRate, channels int) (*Sink, error) {
	buffer := make([]int16, sinkFrameSamples*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), sinkFrameSamples, &buffer)
	if err != nil {
		return nil, fmt.Errorf("playback: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("playback: start output stream: %w", err)
	}
	return &Sink{
		sampleRate: sampleRate,
		channels:   channels,
		stream:     stream,
		buffer:     buffer,
	}, nil
}

// Now returns the wall clock; scheduling precision at chunk granularity does
// not need the device clock.
func (k *Sink) Now() time.Time { return time.Now() }

// Schedule arms a timer for the start time and streams the buffer to the
// device when it fires. Stop before the timer fires cancels the chunk
// entirely; Stop during the write cuts it off at the next device frame.
func (k *Sink) Schedule(buf *audio.Buffer, at time.Time, onDone func()) (Source, error) {
	src := &sinkSource{stop: make(chan struct{})}
	src.timer = time.AfterFunc(time.Until(at), func() {
		completed := k.play(buf, src.stop)
		if completed && onDone != nil {
			onDone()
		}
	})
	return src, nil
}

// play writes the buffer to the device in frame-sized slices. It returns
// false if the stop channel closed before the last slice.
func (k *Sink) play(buf *audio.Buffer, stop <-chan struct{}) bool {
	samples := audio.BytesToInt16(buf.PCM16())

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return false
	}

	for offset := 0; offset < len(samples); {
		select {
		case <-stop:
			return false
		default:
		}

		n := copy(k.buffer, samples[offset:])
		for i := n; i < len(k.buffer); i++ {
			k.buffer[i] = 0
		}
		offset += n
		if err := k.stream.Write(); err != nil {
			return false
		}
	}
	return true
}

// Close stops and releases the output stream.
func (k *Sink) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	_ = k.stream.Abort()
	return k.stream.Close()
}

type sinkSource struct {
	timer *time.Timer
	stop  chan struct{}
	once  sync.Once
}

func (s *sinkSource) Stop() {
	s.once.Do(func() {
		s.timer.Stop()
		close(s.stop)
	})
}
