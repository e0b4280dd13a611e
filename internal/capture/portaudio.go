package capture

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Init initializes the PortAudio host API. Call once at process start,
// paired with Terminate at shutdown.
func Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("capture: initialize portaudio: %w", err)
	}
	return nil
}

// Terminate releases the PortAudio host API.
func Terminate() error {
	return portaudio.Terminate()
}

// Microphone is the PortAudio-backed default-input Device.
type Microphone struct{}

// NewMicrophone returns a Device reading from the default input device.
func NewMicrophone() *Microphone {
	return &Microphone{}
}

var _ Device = (*Microphone)(nil)

// Open starts a capture stream on the default input device. Open failures
// are reported as permission denials: on every supported OS a denied mic
// shows up here as a stream open error.
func (m *Microphone) Open(sampleRate, frameSamples int) (Stream, error) {
	buffer := make([]int16, frameSamples)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buffer), &buffer)
	if err != nil {
		return nil, fmt.Errorf("%w: open input stream: %w", ErrPermissionDenied, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: start input stream: %w", ErrPermissionDenied, err)
	}

	ms := &micStream{
		stream: stream,
		buffer: buffer,
		frames: make(chan []int16, 8),
		done:   make(chan struct{}),
	}
	ms.wg.Add(1)
	go ms.readLoop()
	return ms, nil
}

type micStream struct {
	stream *portaudio.Stream
	buffer []int16
	frames chan []int16

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (s *micStream) Frames() <-chan []int16 { return s.frames }

func (s *micStream) readLoop() {
	defer s.wg.Done()
	defer close(s.frames)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			// Read fails once the stream is stopped; treat as end of stream.
			return
		}
		frame := make([]int16, len(s.buffer))
		copy(frame, s.buffer)

		select {
		case s.frames <- frame:
		case <-s.done:
			return
		}
	}
}

// Close stops the device and closes the frame channel. Idempotent.
func (s *micStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.stream.Abort()
		s.wg.Wait()
		err = s.stream.Close()
	})
	return err
}
