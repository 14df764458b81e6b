package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// GeneralizationKind is the classifier a generalization accumulates results for.
type GeneralizationKind string

const (
	GeneralizationSentiment GeneralizationKind = "sentiment"
	GeneralizationEmotion   GeneralizationKind = "emotion"
	GeneralizationLanguage  GeneralizationKind = "language"
)

// MinGeneralizationSize is the smallest window a caller may request.
const MinGeneralizationSize = 2

// Generalization is a rolling window of classifier predictions.
type Generalization struct {
	ID             uuid.UUID
	AccessRecordID int64
	Kind           GeneralizationKind
	Size           int
	Window         []map[string]float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Add appends predictions and drops the oldest entries beyond Size.
func (g *Generalization) Add(predictions map[string]float64) {
	g.Window = append(g.Window, predictions)
	if over := len(g.Window) - g.Size; over > 0 {
		g.Window = g.Window[over:]
	}
}

// Average returns the mean probability per label over the window.
func (g *Generalization) Average() map[string]float64 {
	out := make(map[string]float64)
	if len(g.Window) == 0 {
		return out
	}
	for _, predictions := range g.Window {
		for label, p := range predictions {
			out[label] += p
		}
	}
	n := float64(len(g.Window))
	for label := range out {
		out[label] /= n
	}
	return out
}

// TopLabel returns the label with the highest averaged probability. Ties are
// broken alphabetically so results are deterministic.
func TopLabel(predictions map[string]float64) string {
	labels := make([]string, 0, len(predictions))
	for label := range predictions {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	best := ""
	bestP := -1.0
	for _, label := range labels {
		if predictions[label] > bestP {
			best = label
			bestP = predictions[label]
		}
	}
	return best
}
