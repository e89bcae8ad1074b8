package video

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestJPEG(t *testing.T, w, h int, fill uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = fill
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestExtractJPEG(t *testing.T) {
	jpg := encodeTestJPEG(t, 8, 8, 128)

	t.Run("complete frame", func(t *testing.T) {
		buffer := append([]byte{0x00, 0x01}, jpg...)
		got := extractJPEG(&buffer)
		require.NotNil(t, got)
		assert.Equal(t, jpg, got)
		assert.Empty(t, buffer)
	})

	t.Run("partial frame stays buffered", func(t *testing.T) {
		buffer := append([]byte{}, jpg[:len(jpg)/2]...)
		assert.Nil(t, extractJPEG(&buffer))
		assert.Equal(t, jpg[:len(jpg)/2], buffer)
	})

	t.Run("two frames extracted in order", func(t *testing.T) {
		second := encodeTestJPEG(t, 8, 8, 200)
		buffer := append(append([]byte{}, jpg...), second...)

		first := extractJPEG(&buffer)
		require.NotNil(t, first)
		assert.Equal(t, jpg, first)

		got := extractJPEG(&buffer)
		require.NotNil(t, got)
		assert.Equal(t, second, got)
	})

	t.Run("endless frame is discarded at the cap", func(t *testing.T) {
		// A start marker followed by garbage with no end marker must not
		// accumulate forever.
		buffer := append([]byte{0xFF, 0xD8}, bytes.Repeat([]byte{0x42}, maxScanBuffer+1)...)
		assert.Nil(t, extractJPEG(&buffer))
		assert.Len(t, buffer, 1)

		// The stream recovers once a valid frame arrives.
		buffer = append(buffer, jpg...)
		got := extractJPEG(&buffer)
		require.NotNil(t, got)
		assert.Equal(t, jpg, got)
	})
}

func TestFromImageDownscale(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 1280, 720))
	frame, err := FromImage(img, 640)
	require.NoError(t, err)
	assert.Equal(t, 640, frame.Width)
	assert.Equal(t, 360, frame.Height)
	assert.Len(t, frame.Pix, 640*360)
}

func TestFromImageNoScaling(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 320, 240))
	img.SetGray(10, 20, color.Gray{Y: 77})

	frame, err := FromImage(img, 640)
	require.NoError(t, err)
	assert.Equal(t, 320, frame.Width)
	assert.Equal(t, 240, frame.Height)
	assert.Equal(t, uint8(77), frame.At(10, 20))
}

func TestOpenMJPEGStreamsFrames(t *testing.T) {
	jpg := encodeTestJPEG(t, 16, 16, 100)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 5; i++ {
			w.Write(jpg)
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
	defer srv.Close()

	src, err := OpenMJPEG(srv.URL, MJPEGOptions{})
	require.NoError(t, err)
	defer src.Close()

	select {
	case frame, ok := <-src.Frames():
		require.True(t, ok)
		assert.Equal(t, 16, frame.Width)
		assert.Equal(t, 16, frame.Height)
		assert.False(t, frame.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first frame")
	}
}

func TestOpenMJPEGSkipsCorruptFrames(t *testing.T) {
	good := encodeTestJPEG(t, 16, 16, 100)
	// Valid markers around garbage entropy data decodes as an error.
	corrupt := append([]byte{0xFF, 0xD8}, bytes.Repeat([]byte{0x42}, 32)...)
	corrupt = append(corrupt, 0xFF, 0xD9)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write(corrupt)
		flusher.Flush()
		w.Write(good)
		flusher.Flush()
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	src, err := OpenMJPEG(srv.URL, MJPEGOptions{})
	require.NoError(t, err)
	defer src.Close()

	select {
	case frame, ok := <-src.Frames():
		require.True(t, ok)
		assert.Equal(t, 16, frame.Width)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame after corrupt payload")
	}
}

func TestOpenMJPEGConnectionRefused(t *testing.T) {
	_, err := OpenMJPEG("http://127.0.0.1:1/stream", MJPEGOptions{})
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
}

func TestOpenMJPEGBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := OpenMJPEG(srv.URL, MJPEGOptions{})
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
}

func TestSourceErrAfterStreamEnds(t *testing.T) {
	jpg := encodeTestJPEG(t, 8, 8, 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jpg)
	}))
	defer srv.Close()

	src, err := OpenMJPEG(srv.URL, MJPEGOptions{})
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-src.Frames():
			if !ok {
				assert.True(t, IsConnectionError(src.Err()))
				return
			}
		case <-deadline:
			t.Fatal("frames channel never closed")
		}
	}
}
