package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/emvision/emvision/pkg/nn"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const testVideoFrames = 70

func writeTestVideo(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "street.avi")
	writer, err := gocv.VideoWriterFile(path, "MJPG", 24, 320, 240, true)
	require.NoError(t, err)
	defer writer.Close()
	require.True(t, writer.IsOpened())

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(80, 80, 80, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()
	for i := 0; i < testVideoFrames; i++ {
		require.NoError(t, writer.Write(frame))
	}
	return path
}

func TestProcessVideo(t *testing.T) {
	// One vehicle, always in the same place. Confidence varies so the
	// stride-sampled frames (0, 30, 60) see 0.4, then 0.9, then 0.6:
	// the bucket must keep the 0.9 sighting, not the most recent one.
	confidenceAt := func(frameIdx int) float32 {
		switch {
		case frameIdx < 30:
			return 0.4
		case frameIdx < 60:
			return 0.9
		default:
			return 0.6
		}
	}
	detector := &stubDetector{
		detect: func(call int, frame gocv.Mat) ([]nn.ObjectDetection, error) {
			return []nn.ObjectDetection{
				{Class: 2, Confidence: confidenceAt(call), Box: nn.Rect{X: 105, Y: 60, Width: 80, Height: 60}},
			}, nil
		},
	}
	p := newTestPipeline(t, detector)

	videoPath := writeTestVideo(t)
	result, err := p.ProcessVideo(videoPath, "cam-9", "job-1")
	require.NoError(t, err)

	// Annotation runs on every frame; detection count matches frames
	require.Equal(t, testVideoFrames, result.FrameCount)
	require.Equal(t, testVideoFrames, detector.calls)

	// One bucket, best confidence kept
	require.Len(t, result.Detections, 1)
	d := result.Detections[0]
	require.Equal(t, float32(0.9), d.Confidence)
	require.Equal(t, "cam-9", d.SourceID)

	// The representative frame was saved when the bucket best improved
	require.Contains(t, d.MediaReference, filepath.Join("frames", "job-1", "frame_000030.jpg"))
	_, err = os.Stat(d.MediaReference)
	require.NoError(t, err)

	// Output preserves frame count, resolution and frame rate
	require.Equal(t, filepath.Join(filepath.Dir(videoPath), "annotated", "annotated_street.avi"), result.AnnotatedPath)
	out, err := gocv.VideoCaptureFile(result.AnnotatedPath)
	require.NoError(t, err)
	defer out.Close()
	require.Equal(t, float64(testVideoFrames), out.Get(gocv.VideoCaptureFrameCount))
	require.Equal(t, 320.0, out.Get(gocv.VideoCaptureFrameWidth))
	require.Equal(t, 240.0, out.Get(gocv.VideoCaptureFrameHeight))
	require.Equal(t, 24.0, out.Get(gocv.VideoCaptureFPS))
}

func TestProcessVideoNoDetections(t *testing.T) {
	detector := &stubDetector{
		detect: func(call int, frame gocv.Mat) ([]nn.ObjectDetection, error) {
			return []nn.ObjectDetection{}, nil
		},
	}
	p := newTestPipeline(t, detector)

	result, err := p.ProcessVideo(writeTestVideo(t), "cam-9", "job-2")
	require.NoError(t, err)
	// Success with zero detections is distinct from failure
	require.Empty(t, result.Detections)
	require.Equal(t, testVideoFrames, result.FrameCount)
}

func TestOpenVideoWriterRejectsUnsupportedCodec(t *testing.T) {
	// VideoWriterFile reports no error for a codec the backend cannot
	// encode; the writer just never opens and Write becomes a no-op. That
	// must surface as a failure, never as a silently empty output file.
	path := filepath.Join(t.TempDir(), "out.avi")
	_, err := openVideoWriter(path, "ZZZZ", 24, 320, 240)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to open")
}

func TestOpenVideoWriterSupportedCodec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avi")
	writer, err := openVideoWriter(path, "MJPG", 24, 320, 240)
	require.NoError(t, err)
	writer.Close()
}

func TestProcessVideoMissingFile(t *testing.T) {
	p := newTestPipeline(t, &stubDetector{})
	_, err := p.ProcessVideo(filepath.Join(t.TempDir(), "nope.mp4"), "cam-9", "job-3")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidMedia))
}

func TestProcessVideoDetectorFailureFailsJob(t *testing.T) {
	boom := errors.New("backend crashed")
	detector := &stubDetector{
		detect: func(call int, frame gocv.Mat) ([]nn.ObjectDetection, error) {
			if call == 5 {
				return nil, boom
			}
			return []nn.ObjectDetection{}, nil
		},
	}
	p := newTestPipeline(t, detector)
	_, err := p.ProcessVideo(writeTestVideo(t), "cam-9", "job-4")
	require.True(t, errors.Is(err, boom))
}
