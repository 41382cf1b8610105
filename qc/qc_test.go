package qc_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithj/simtools/qc"
	"github.com/keithj/simtools/sim"
)

func makeSim(t *testing.T, hdr sim.Header, names []string, records [][]float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sim")
	w, err := sim.Create(path, hdr)
	require.NoError(t, err)
	for i, name := range names {
		require.NoError(t, w.WriteRecord(name, records[i]))
	}
	require.NoError(t, w.Close())
	return path
}

// referenceSim is a small dataset with hand-computed expectations:
// P=2, C=2, N=2, S1 = [(3,4),(0,0)], S2 = [(0,0),(6,8)]. Raw probe
// magnitudes are S1=[5,0], S2=[0,10], baselines [2.5,5], so both
// samples normalize to 1.0; xydiffs are 0.5 and 1.0.
func referenceSim(t *testing.T, format uint8) string {
	return makeSim(t,
		sim.Header{
			SampleNameSize: 10,
			NumSamples:     2,
			NumProbes:      2,
			NumChannels:    2,
			NumberFormat:   format,
		},
		[]string{"S1", "S2"},
		[][]float64{
			{3, 4, 0, 0},
			{0, 0, 6, 8},
		},
	)
}

func TestMagnitudesReference(t *testing.T) {
	for _, format := range []uint8{sim.FormatFloat, sim.FormatUint16} {
		t.Run(sim.FormatName(format), func(t *testing.T) {
			r, err := sim.Open(referenceSim(t, format))
			require.NoError(t, err)
			defer r.Close()

			metrics, err := qc.Magnitudes(r)
			require.NoError(t, err)
			require.Len(t, metrics, 2)

			assert.Equal(t, "S1", metrics[0].Sample)
			assert.Equal(t, "S2", metrics[1].Sample)
			assert.InDelta(t, 1.0, metrics[0].Value, 1e-12)
			assert.InDelta(t, 1.0, metrics[1].Value, 1e-12)
		})
	}
}

func TestXYDiffsReference(t *testing.T) {
	for _, format := range []uint8{sim.FormatFloat, sim.FormatUint16} {
		t.Run(sim.FormatName(format), func(t *testing.T) {
			r, err := sim.Open(referenceSim(t, format))
			require.NoError(t, err)
			defer r.Close()

			metrics, err := qc.XYDiffs(r)
			require.NoError(t, err)
			require.Len(t, metrics, 2)

			assert.Equal(t, "S1", metrics[0].Sample)
			assert.InDelta(t, 0.5, metrics[0].Value, 1e-12)
			assert.Equal(t, "S2", metrics[1].Sample)
			assert.InDelta(t, 1.0, metrics[1].Value, 1e-12)
		})
	}
}

// Scaling every intensity by a constant scales each probe magnitude and
// its baseline alike, so normalized magnitudes must not change.
func TestMagnitudesScaleInvariant(t *testing.T) {
	hdr := sim.Header{
		SampleNameSize: 10,
		NumSamples:     2,
		NumProbes:      2,
		NumChannels:    2,
		NumberFormat:   sim.FormatFloat,
	}
	base := [][]float64{
		{1.5, 2, 0.5, 1},
		{3, 0.25, 2, 1.25},
	}
	const k = 4 // power of two, exact in float32
	scaled := make([][]float64, len(base))
	for i, rec := range base {
		scaled[i] = make([]float64, len(rec))
		for j, v := range rec {
			scaled[i][j] = v * k
		}
	}
	names := []string{"S1", "S2"}

	open := func(records [][]float64) []qc.Metric {
		r, err := sim.Open(makeSim(t, hdr, names, records))
		require.NoError(t, err)
		defer r.Close()
		metrics, err := qc.Magnitudes(r)
		require.NoError(t, err)
		return metrics
	}

	got := open(base)
	gotScaled := open(scaled)
	require.Len(t, gotScaled, len(got))
	for i := range got {
		assert.InDelta(t, got[i].Value, gotScaled[i].Value, 1e-12)
	}
}

func TestMagnitudesMultiChannel(t *testing.T) {
	r, err := sim.Open(makeSim(t,
		sim.Header{
			SampleNameSize: 10,
			NumSamples:     2,
			NumProbes:      1,
			NumChannels:    3,
			NumberFormat:   sim.FormatUint16,
		},
		[]string{"S1", "S2"},
		[][]float64{
			{1, 2, 2}, // magnitude 3
			{2, 4, 4}, // magnitude 6
		},
	))
	require.NoError(t, err)
	defer r.Close()

	metrics, err := qc.Magnitudes(r)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.InDelta(t, 3.0/4.5, metrics[0].Value, 1e-12)
	assert.InDelta(t, 6.0/4.5, metrics[1].Value, 1e-12)
}

// A probe with zero intensity in every sample has a zero baseline; its
// 0/0 contribution makes the sample metric NaN rather than dropping the
// probe silently.
func TestMagnitudesZeroBaseline(t *testing.T) {
	r, err := sim.Open(makeSim(t,
		sim.Header{
			SampleNameSize: 10,
			NumSamples:     2,
			NumProbes:      2,
			NumChannels:    2,
			NumberFormat:   sim.FormatUint16,
		},
		[]string{"S1", "S2"},
		[][]float64{
			{3, 4, 0, 0},
			{6, 8, 0, 0},
		},
	))
	require.NoError(t, err)
	defer r.Close()

	metrics, err := qc.Magnitudes(r)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.True(t, math.IsNaN(metrics[0].Value))
	assert.True(t, math.IsNaN(metrics[1].Value))
}

func TestXYDiffsRequiresTwoChannels(t *testing.T) {
	r, err := sim.Open(makeSim(t,
		sim.Header{
			SampleNameSize: 10,
			NumSamples:     1,
			NumProbes:      1,
			NumChannels:    3,
			NumberFormat:   sim.FormatUint16,
		},
		[]string{"S1"},
		[][]float64{{1, 2, 3}},
	))
	require.NoError(t, err)
	defer r.Close()

	_, err = qc.XYDiffs(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "two channels")
	// The precondition fails before any record is read.
	assert.Equal(t, uint32(0), r.Pos())
}

func TestZeroSamplesFailFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sim")
	w, err := sim.Create(path, sim.Header{
		SampleNameSize: 10,
		NumSamples:     0,
		NumProbes:      2,
		NumChannels:    2,
		NumberFormat:   sim.FormatUint16,
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := sim.Open(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = qc.Magnitudes(r)
	assert.ErrorContains(t, err, "zero samples")
	_, err = qc.XYDiffs(r)
	assert.ErrorContains(t, err, "zero samples")
}

func TestMagnitudesConsumeDeclaredCountAndRepeat(t *testing.T) {
	r, err := sim.Open(referenceSim(t, sim.FormatFloat))
	require.NoError(t, err)
	defer r.Close()

	first, err := qc.Magnitudes(r)
	require.NoError(t, err)
	assert.Equal(t, r.Header().NumSamples, r.Pos())

	// Rewinding restores identical record order, so a repeat run on the
	// same handle is deterministic.
	second, err := qc.Magnitudes(r)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMagnitudesTruncatedSource(t *testing.T) {
	path := referenceSim(t, sim.FormatUint16)
	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, fi.Size()-2))

	r, err := sim.Open(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = qc.Magnitudes(r)
	assert.ErrorIs(t, err, sim.ErrTruncated)
}
