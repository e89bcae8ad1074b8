package video

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

const defaultMaxFrameWidth = 640

// maxScanBuffer bounds the boundary-scan buffer. A start marker with no end
// marker within this many bytes is garbage, not a frame; without the cap a
// truncated stream would grow the buffer until memory runs out.
const maxScanBuffer = 8 << 20

// MJPEGSource reads an MJPEG stream over HTTP and decodes it into grayscale
// frames. It tolerates corrupt JPEG payloads by skipping them; only transport
// failures terminate the source.
type MJPEGSource struct {
	url      string
	maxWidth int
	client   *http.Client
	logger   *log.Logger

	frames chan *Frame
	stopCh chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
	done   chan struct{}
}

// MJPEGOptions configures an MJPEGSource.
type MJPEGOptions struct {
	// MaxFrameWidth caps decoded frame width; larger frames are downscaled.
	// Zero means the 640px default, negative disables scaling.
	MaxFrameWidth int
	Client        *http.Client
	Logger        *log.Logger
}

// OpenMJPEG connects to an MJPEG stream URL and starts capture. The initial
// HTTP request happens synchronously so a bad URL fails fast.
func OpenMJPEG(url string, opts MJPEGOptions) (*MJPEGSource, error) {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 0} // streaming, no overall deadline
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	maxWidth := opts.MaxFrameWidth
	if maxWidth == 0 {
		maxWidth = defaultMaxFrameWidth
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &ConnectionError{URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	s := &MJPEGSource{
		url:      url,
		maxWidth: maxWidth,
		client:   client,
		logger:   logger,
		frames:   make(chan *Frame, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.readLoop(resp.Body)
	return s, nil
}

func (s *MJPEGSource) Frames() <-chan *Frame { return s.frames }

func (s *MJPEGSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *MJPEGSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopCh)
	s.mu.Unlock()

	<-s.done
	return nil
}

// readLoop scans the response body for JPEG frame boundaries, decodes each
// complete frame, and publishes it. The frames channel holds a single slot;
// when the consumer lags, the stale frame is replaced with the newest one.
func (s *MJPEGSource) readLoop(body io.ReadCloser) {
	defer close(s.done)
	defer close(s.frames)
	defer body.Close()

	buffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 32*1024)
	var seq uint64

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		n, err := body.Read(chunk)
		if n > 0 {
			buffer = append(buffer, chunk[:n]...)
			for {
				jpg := extractJPEG(&buffer)
				if jpg == nil {
					break
				}
				frame := s.decode(jpg, seq)
				if frame == nil {
					continue // corrupt payload, skip
				}
				seq++
				s.publish(frame)
			}
		}
		if err != nil {
			s.mu.Lock()
			if !s.closed {
				if err == io.EOF {
					s.err = &ConnectionError{URL: s.url, Err: fmt.Errorf("stream ended")}
				} else {
					s.err = &ConnectionError{URL: s.url, Err: err}
				}
			}
			s.mu.Unlock()
			return
		}
	}
}

func (s *MJPEGSource) decode(jpg []byte, seq uint64) *Frame {
	img, err := jpeg.Decode(bytes.NewReader(jpg))
	if err != nil {
		s.logger.Printf("[MJPEG] skipping corrupt frame: %v", err)
		return nil
	}
	frame, err := FromImage(img, s.maxWidth)
	if err != nil {
		s.logger.Printf("[MJPEG] skipping frame: %v", err)
		return nil
	}
	frame.Timestamp = time.Now()
	frame.Seq = seq
	return frame
}

// publish delivers a frame with newest-wins semantics: if the single-slot
// channel is full, the queued frame is discarded in favor of this one.
func (s *MJPEGSource) publish(frame *Frame) {
	for {
		select {
		case s.frames <- frame:
			return
		default:
		}
		select {
		case <-s.frames:
		default:
		}
	}
}

// extractJPEG extracts one complete JPEG (FFD8...FFD9) from the buffer and
// removes the consumed bytes. Returns nil when no complete frame is present.
func extractJPEG(buffer *[]byte) []byte {
	buf := *buffer
	if len(buf) < 4 {
		return nil
	}

	startIdx := -1
	for i := 0; i < len(buf)-1; i++ {
		if buf[i] == 0xFF && buf[i+1] == 0xD8 {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		// No start marker anywhere; keep only the last byte in case it is
		// the first half of a marker split across reads.
		*buffer = append(buf[:0], buf[len(buf)-1])
		return nil
	}

	endIdx := -1
	for i := startIdx + 2; i < len(buf)-1; i++ {
		if buf[i] == 0xFF && buf[i+1] == 0xD9 {
			endIdx = i + 2
			break
		}
	}
	if endIdx == -1 {
		if len(buf)-startIdx > maxScanBuffer {
			*buffer = append(buf[:0], buf[len(buf)-1])
		}
		return nil
	}

	frame := make([]byte, endIdx-startIdx)
	copy(frame, buf[startIdx:endIdx])
	*buffer = buf[endIdx:]
	return frame
}
