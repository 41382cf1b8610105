// Package qc computes per-sample quality-control metrics from .sim
// intensity files: probe-normalized sample magnitude and XY intensity
// difference.
package qc

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/keithj/simtools/sim"
)

// progressEvery is the sample interval between progress log lines.
const progressEvery = 1000

// Metric is one per-sample result. Slices of Metric preserve the order
// in which samples were read from the source.
type Metric struct {
	Sample string
	Value  float64
}

// Magnitudes computes the probe-normalized mean magnitude of every
// sample in two passes: pass one accumulates the mean magnitude of each
// probe across all samples (the probe baseline), pass two records each
// sample's mean probe magnitude divided by that baseline. The reader is
// rewound before each pass.
//
// A probe whose baseline is zero had zero intensity in every sample, so
// its contribution is 0/0; the resulting NaN is propagated into the
// sample metric rather than the probe being skipped.
func Magnitudes(r *sim.Reader) ([]Metric, error) {
	hdr := r.Header()
	if hdr.NumSamples == 0 {
		return nil, errors.New("qc: dataset declares zero samples")
	}
	baseline, err := probeBaseline(r)
	if err != nil {
		return nil, err
	}
	if err := r.Reset(); err != nil {
		return nil, err
	}
	metrics := make([]Metric, 0, hdr.NumSamples)
	mags := make([]float64, hdr.NumProbes)
	ratios := make([]float64, hdr.NumProbes)
	for i := uint32(0); i < hdr.NumSamples; i++ {
		name, values, err := r.NextRecord()
		if err != nil {
			return nil, fmt.Errorf("qc: magnitude pass 2: %w", err)
		}
		probeMagnitudesTo(mags, values, int(hdr.NumChannels))
		floats.DivTo(ratios, mags, baseline)
		metrics = append(metrics, Metric{Sample: name, Value: stat.Mean(ratios, nil)})
		logProgress("magnitude", i, hdr.NumSamples)
	}
	return metrics, nil
}

// probeBaseline runs pass one: the mean magnitude of each probe across
// all samples.
func probeBaseline(r *sim.Reader) ([]float64, error) {
	hdr := r.Header()
	if err := r.Reset(); err != nil {
		return nil, err
	}
	acc := make([]float64, hdr.NumProbes)
	mags := make([]float64, hdr.NumProbes)
	for i := uint32(0); i < hdr.NumSamples; i++ {
		_, values, err := r.NextRecord()
		if err != nil {
			return nil, fmt.Errorf("qc: magnitude pass 1: %w", err)
		}
		probeMagnitudesTo(mags, values, int(hdr.NumChannels))
		floats.Add(acc, mags)
		logProgress("probe baseline", i, hdr.NumSamples)
	}
	floats.Scale(1/float64(hdr.NumSamples), acc)
	return acc, nil
}

// XYDiffs computes, for every sample, the mean across probes of the
// channel 1 minus channel 0 intensity difference in a single pass. It
// is defined only for two-channel datasets and fails before reading any
// data otherwise.
func XYDiffs(r *sim.Reader) ([]Metric, error) {
	hdr := r.Header()
	if hdr.NumChannels != 2 {
		return nil, fmt.Errorf("qc: xydiff is only defined for exactly two channels, got %d", hdr.NumChannels)
	}
	if hdr.NumSamples == 0 {
		return nil, errors.New("qc: dataset declares zero samples")
	}
	if err := r.Reset(); err != nil {
		return nil, err
	}
	metrics := make([]Metric, 0, hdr.NumSamples)
	for i := uint32(0); i < hdr.NumSamples; i++ {
		name, values, err := r.NextRecord()
		if err != nil {
			return nil, fmt.Errorf("qc: xydiff: %w", err)
		}
		total := 0.0
		for p := 0; p < int(hdr.NumProbes); p++ {
			total += values[p*2+1] - values[p*2]
		}
		metrics = append(metrics, Metric{Sample: name, Value: total / float64(hdr.NumProbes)})
		logProgress("xydiff", i, hdr.NumSamples)
	}
	return metrics, nil
}

// probeMagnitudesTo fills dst with the Euclidean norm of each probe's
// channel intensities for one record. Handles any channel count.
func probeMagnitudesTo(dst, values []float64, channels int) {
	for i := range dst {
		total := 0.0
		for j := 0; j < channels; j++ {
			v := values[i*channels+j]
			total += v * v
		}
		dst[i] = math.Sqrt(total)
	}
}

func logProgress(stage string, i, n uint32) {
	if (i+1)%progressEvery == 0 {
		slog.Info("qc: processed samples", "stage", stage, "done", i+1, "total", n)
	}
}
