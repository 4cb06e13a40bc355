package wakeword

import "github.com/algo-boyz/earshot/pkg/config"

// Trigger is a fired wake-word decision.
type Trigger struct {
	Confidence float32
	Immediate  bool // high-confidence bypass rather than consecutive agreement
}

// Smoother converts a stream of per-window confidences into trigger
// decisions. A single sample at or above the high threshold fires
// immediately; samples between the thresholds must sustain agreement over a
// bounded history; a sample below the medium threshold clears the history.
type Smoother struct {
	high     float32
	medium   float32
	required int
	history  []float32
}

// NewSmoother builds a smoother from the detection config.
func NewSmoother(cfg config.Detection) *Smoother {
	return &Smoother{
		high:     cfg.HighThreshold,
		medium:   cfg.MediumThreshold,
		required: cfg.ConsecutiveRequired,
		history:  make([]float32, 0, cfg.ConsecutiveRequired),
	}
}

// Observe feeds one confidence sample and reports whether a trigger fired.
func (s *Smoother) Observe(c float32) (Trigger, bool) {
	if c >= s.high {
		s.Reset()
		return Trigger{Confidence: c, Immediate: true}, true
	}
	if c < s.medium {
		s.Reset()
		return Trigger{}, false
	}

	if len(s.history) == s.required {
		copy(s.history, s.history[1:])
		s.history = s.history[:s.required-1]
	}
	s.history = append(s.history, c)
	if len(s.history) < s.required {
		return Trigger{}, false
	}
	var sum float32
	for _, v := range s.history {
		sum += v
	}
	mean := sum / float32(s.required)
	if mean < s.medium {
		return Trigger{}, false
	}
	s.Reset()
	return Trigger{Confidence: mean}, true
}

// Reset clears the confidence history. Called by the pipeline whenever a
// rejection stage fires, so partial detections never straddle a non-speech
// window.
func (s *Smoother) Reset() {
	s.history = s.history[:0]
}

// HistoryLen returns the number of buffered samples.
func (s *Smoother) HistoryLen() int { return len(s.history) }
