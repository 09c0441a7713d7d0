package model

import "math"

// Decide turns the raw scalar output into a labelled prediction. The class
// is the score rounded to the nearest integer. Confidence is how far the score
// leans toward that class, in percent.
func Decide(slot int, score float32, classes []string) Prediction {
	if len(classes) < 2 {
		classes = DefaultClasses
	}

	s := float64(score)
	if math.IsNaN(s) {
		return Prediction{Slot: slot}
	}
	s = math.Max(0, math.Min(1, s))

	class := int(math.Round(s))
	confidence := 100 * (1 - s)
	if class == 1 {
		confidence = 100 * s
	}

	return Prediction{
		Slot:       slot,
		Label:      classes[class],
		Confidence: confidence,
		Score:      score,
		OK:         true,
	}
}

// Absent is the prediction of a slot that could not be scored.
func Absent(slot int) Prediction {
	return Prediction{Slot: slot}
}
