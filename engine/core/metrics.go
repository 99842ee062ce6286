package core

import "github.com/spaghettifunk/anima-renderer/engine/containers"

const AvgCount = 30

// Metrics tracks a rolling frame time average and frames per second.
type Metrics struct {
	frameTimes         *containers.Ring[float64]
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

func NewMetrics() *Metrics {
	return &Metrics{
		frameTimes: containers.NewRing[float64](AvgCount),
	}
}

// Update records a frame that took frameElapsedTime seconds.
func (m *Metrics) Update(frameElapsedTime float64) {
	frameMS := frameElapsedTime * 1000.0
	m.frameTimes.Push(frameMS)
	if m.frameTimes.Len() == AvgCount {
		sum := 0.0
		m.frameTimes.Each(func(v float64) {
			sum += v
		})
		m.msAvg = sum / float64(AvgCount)
	}

	// Calculate frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	m.frames++
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

func (m *Metrics) FrameTime() float64 {
	return m.msAvg
}

func (m *Metrics) Frame() (float64, float64) {
	return m.fps, m.msAvg
}
