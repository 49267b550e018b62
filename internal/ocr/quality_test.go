package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicConfidence(t *testing.T) {
	assert.Equal(t, 0.0, heuristicConfidence(""))
	assert.InDelta(t, 1.0, heuristicConfidence(gasCertText), 1e-9)
	// base + alnum only
	assert.InDelta(t, 0.4, heuristicConfidence("hello world"), 1e-9)
	// base + date + alnum
	assert.InDelta(t, 0.6, heuristicConfidence("issued 3 March 2024"), 1e-9)
}

func TestQualityBlendsProviderConfidence(t *testing.T) {
	h := heuristicConfidence("hello world")
	assert.InDelta(t, h, Quality("hello world", NoConfidence), 1e-9)
	assert.InDelta(t, 0.7*0.5+0.3*h, Quality("hello world", 0.5), 1e-9)
	assert.InDelta(t, 0.7+0.3*h, Quality("hello world", 7), 1e-9, "provider confidence is clamped")
	assert.Equal(t, 0.0, Quality("", 0.99))
}

func TestLevelFor(t *testing.T) {
	cases := map[float64]QualityLevel{
		0.9:  QualityExcellent,
		0.85: QualityExcellent,
		0.7:  QualityGood,
		0.5:  QualityAcceptable,
		0.1:  QualityPoor,
		0:    QualityFailed,
	}
	for q, want := range cases {
		assert.Equal(t, want, LevelFor(q), "quality %v", q)
	}
}

func TestNormalize(t *testing.T) {
	in := "Gas\tSafety   Record\r\n\r\n\r\n\r\n-----\nRef 0123\n"
	assert.Equal(t, "Gas Safety Record\n\nRef 0123", Normalize(in))
	assert.Equal(t, "Flat 02, 15/01/2024", Normalize("Flat 02, 15/01/2024"))
}
