package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/callpilot/pkg/provider/live"
)

// DefaultVideoInterval is the cadence at which camera stills are pushed.
const DefaultVideoInterval = time.Second

const jpegQuality = 80

// FrameGrabber acquires single still frames from a camera.
type FrameGrabber interface {
	Grab() (image.Image, error)
	Close() error
}

// VideoPipeline periodically grabs a camera still, encodes it as JPEG and
// pushes it into a Sender.
type VideoPipeline struct {
	grabber  FrameGrabber
	sink     Sender
	interval time.Duration

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// StartVideo verifies camera access with an initial grab, sends that frame
// and then continues on the given cadence. Acquisition failures wrap
// [ErrPermissionDenied]; failures after startup are logged and skipped so a
// flaky camera never ends the call.
func StartVideo(grabber FrameGrabber, sink Sender, interval time.Duration) (*VideoPipeline, error) {
	if interval <= 0 {
		interval = DefaultVideoInterval
	}

	img, err := grabber.Grab()
	if err != nil {
		return nil, fmt.Errorf("%w: acquire camera: %w", ErrPermissionDenied, err)
	}

	v := &VideoPipeline{
		grabber:  grabber,
		sink:     sink,
		interval: interval,
		done:     make(chan struct{}),
	}
	v.sendStill(img)

	v.wg.Add(1)
	go v.loop()
	return v, nil
}

func (v *VideoPipeline) loop() {
	defer v.wg.Done()
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-v.done:
			return
		case <-ticker.C:
			img, err := v.grabber.Grab()
			if err != nil {
				slog.Warn("capture: camera grab failed, skipping frame", "error", err)
				continue
			}
			v.sendStill(img)
		}
	}
}

func (v *VideoPipeline) sendStill(img image.Image) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		slog.Warn("capture: jpeg encode failed, skipping frame", "error", err)
		return
	}
	if err := v.sink.SendFrame(live.Frame{MIMEType: live.MIMEImageJPEG, Data: buf.Bytes()}); err != nil {
		slog.Debug("capture: dropping video frame", "error", err)
	}
}

// Stop ends the cadence and releases the camera. Idempotent.
func (v *VideoPipeline) Stop() error {
	var err error
	v.stopOnce.Do(func() {
		close(v.done)
		v.wg.Wait()
		err = v.grabber.Close()
	})
	return err
}
