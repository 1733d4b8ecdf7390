package capture

import (
	"errors"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestMockCamera_Playback(t *testing.T) {
	frame1 := SolidFrame(64, 48, color.RGBA{})
	defer frame1.Close()
	frame2 := SolidFrame(64, 48, color.RGBA{R: 255})
	defer frame2.Close()

	cam := NewMockCamera([]*gocv.Mat{frame1, frame2}, false)

	_, err := cam.ReadFrame()
	assert.ErrorIs(t, err, ErrCameraClosed)

	require.NoError(t, cam.Open())
	defer cam.Close()

	for i := 0; i < 2; i++ {
		f, err := cam.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, 64, f.Cols())
		assert.Equal(t, 48, f.Rows())
		f.Close()
	}

	_, err = cam.ReadFrame()
	assert.ErrorIs(t, err, ErrEndOfFrames)
	assert.Equal(t, 2, cam.Reads())
}

func TestMockCamera_Loop(t *testing.T) {
	frame := SolidFrame(32, 32, color.RGBA{G: 128})
	defer frame.Close()

	cam := NewMockCamera([]*gocv.Mat{frame}, true)
	require.NoError(t, cam.Open())
	defer cam.Close()

	for i := 0; i < 5; i++ {
		f, err := cam.ReadFrame()
		require.NoError(t, err, "iteration %d", i)
		f.Close()
	}
	assert.Equal(t, 5, cam.Reads())
}

func TestMockCamera_NoFrames(t *testing.T) {
	cam := NewMockCamera(nil, true)
	require.NoError(t, cam.Open())

	_, err := cam.ReadFrame()
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestMockCamera_FailOpen(t *testing.T) {
	cam := NewMockCamera(nil, false)
	boom := errors.New("device busy")

	cam.FailOpen(boom)
	assert.ErrorIs(t, cam.Open(), boom)
	assert.False(t, cam.IsOpen())

	cam.FailOpen(nil)
	assert.NoError(t, cam.Open())
	assert.True(t, cam.IsOpen())
}

func TestMockCamera_FPS(t *testing.T) {
	cam := NewMockCamera(nil, false)
	assert.Equal(t, DefaultFPS, cam.FPS())

	cam.SetFPS(5)
	cam.SetFPS(0)
	assert.Equal(t, 5, cam.FPS())
}

func TestSolidFrame(t *testing.T) {
	f := SolidFrame(8, 4, color.RGBA{R: 10, G: 20, B: 30})
	defer f.Close()

	assert.Equal(t, 8, f.Cols())
	assert.Equal(t, 4, f.Rows())
	assert.Equal(t, 3, f.Channels())

	// BGR order
	assert.Equal(t, uint8(30), f.GetVecbAt(0, 0)[0])
	assert.Equal(t, uint8(20), f.GetVecbAt(0, 0)[1])
	assert.Equal(t, uint8(10), f.GetVecbAt(0, 0)[2])
}
