package presets

import "math"

// CrossDistCutoff is the output diagonal, in pixels, at and above which no
// CRF reduction is applied.
const CrossDistCutoff = 2000.0

// maxCRFReduction is the largest reduction applied to tiny outputs.
const maxCRFReduction = 10.0

// lowCPUOffset is subtracted from the base CRF for the low-CPU x264 variant.
const lowCPUOffset = 2

// CRFReduction returns how many CRF steps to subtract for an output of
// cx by cy pixels. The result lies in [0, 10] and never grows as the
// output gets larger.
func CRFReduction(cx, cy int) int {
	fx, fy := float64(max(cx, 0)), float64(max(cy, 0))
	diag := math.Sqrt(fx*fx + fy*fy)
	ratio := math.Min(CrossDistCutoff, diag) / CrossDistCutoff
	return int(math.Round((1.0 - ratio) * maxCRFReduction))
}

// CalcCRF adjusts a base CRF for the output resolution. Smaller outputs get
// a lower (higher quality) CRF.
func CalcCRF(base, cx, cy int, lowCPU bool) int {
	crf := base
	if lowCPU {
		crf -= lowCPUOffset
	}
	return crf - CRFReduction(cx, cy)
}
