package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"tuner/internal/audio"
	"tuner/internal/config"
	"tuner/internal/pitch"
)

// AnalyzeSummary counts frame outcomes of an offline analysis.
type AnalyzeSummary struct {
	Frames   int
	ByStatus map[pitch.Status]int
}

// Analyze runs every whole frame of clip through the pipeline described
// by cfg and writes one line per frame to w. The clip's sample rate
// replaces the configured one. No smoothing is applied: each line is
// what the estimator saw in that frame alone.
func Analyze(w io.Writer, clip *audio.Clip, cfg *config.Config) (AnalyzeSummary, error) {
	fileCfg := *cfg
	fileCfg.Audio.SampleRate = clip.SampleRate
	pipeline, err := fileCfg.Pipeline()
	if err != nil {
		return AnalyzeSummary{}, fmt.Errorf("analysis settings for %g Hz audio: %w", clip.SampleRate, err)
	}

	size := pipeline.FrameSize()
	summary := AnalyzeSummary{ByStatus: make(map[pitch.Status]int)}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATUS\tNOTE\tCENTS\tFREQ (Hz)\tCONFIDENCE\tRMS")
	for i, frame := range clip.Frames(size, size) {
		res := pipeline.Process(frame)
		summary.Frames++
		summary.ByStatus[res.Status]++

		at := time.Duration(float64(i*size) / clip.SampleRate * float64(time.Second))
		if res.Status == pitch.Pitched {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%+.1f\t%.2f\t%.2f\t%.4f\n",
				at.Round(time.Millisecond), res.Status, res.Reading.Note, res.Reading.CentsOffset,
				res.Reading.FrequencyHz, res.Estimate.Confidence, res.Estimate.AmplitudeRMS)
		} else {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t%.2f\t%.4f\n",
				at.Round(time.Millisecond), res.Status, res.Estimate.Confidence, res.Estimate.AmplitudeRMS)
		}
	}
	if err := tw.Flush(); err != nil {
		return summary, err
	}
	if summary.Frames == 0 {
		return summary, fmt.Errorf("clip of %v is shorter than one %d-sample frame", clip.Duration(), size)
	}
	return summary, nil
}
