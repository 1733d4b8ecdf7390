package app

import (
	"bytes"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
)

// latestFrame keeps a copy of the most recent camera frame for previews.
type latestFrame struct {
	mu  sync.Mutex
	mat gocv.Mat
	ok  bool
}

func (f *latestFrame) store(src *gocv.Mat) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.ok {
		f.mat = gocv.NewMat()
		f.ok = true
	}
	src.CopyTo(&f.mat)
}

func (f *latestFrame) jpeg() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.ok || f.mat.Empty() {
		return nil, capture.ErrNoFrame
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, f.mat)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return bytes.Clone(buf.GetBytes()), nil
}

func (f *latestFrame) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ok {
		f.mat.Close()
		f.ok = false
	}
}
