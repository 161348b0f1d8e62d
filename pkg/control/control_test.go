package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecam/camcore/pkg/capture"
	"github.com/livecam/camcore/pkg/driver"
	"github.com/livecam/camcore/pkg/driver/availability"
	"github.com/livecam/camcore/pkg/driver/vendor"
	"github.com/livecam/camcore/pkg/driver/vendortest"
	"github.com/livecam/camcore/pkg/session"
)

type exposureCall struct {
	mode driver.ExposureMode
	us   float64
}

type setterMock struct {
	exposures []exposureCall
	gains     []float64
	presets   []int
	rates     []float64
	fail      error
}

func (m *setterMock) ApplyExposure(mode driver.ExposureMode, us float64) error {
	if m.fail != nil {
		return m.fail
	}
	m.exposures = append(m.exposures, exposureCall{mode, us})
	return nil
}

func (m *setterMock) SetAnalogGain(gain float64) error {
	if m.fail != nil {
		return m.fail
	}
	m.gains = append(m.gains, gain)
	return nil
}

func (m *setterMock) SetROIPreset(preset int) error {
	if m.fail != nil {
		return m.fail
	}
	m.presets = append(m.presets, preset)
	return nil
}

func (m *setterMock) SetFrameRate(fps float64) error {
	if m.fail != nil {
		return m.fail
	}
	m.rates = append(m.rates, fps)
	return nil
}

func ptr[T any](v T) *T { return &v }

var fullCapability = driver.Capability{SupportsFrameRateControl: true}

func TestMillisecondsToMicroseconds(t *testing.T) {
	cases := map[float64]float64{
		50:    50000,
		0.1:   100,
		100:   100000,
		33.3:  33300,
		0.125: 125,
	}
	for ms, us := range cases {
		assert.Equal(t, us, MillisecondsToMicroseconds(ms), "%gms", ms)
	}
}

func TestApplyManualExposure(t *testing.T) {
	m := &setterMock{}
	c := New()

	require.NoError(t, c.Apply(m, fullCapability, Settings{ExposureTimeMS: ptr(50.0)}))
	assert.Equal(t, []exposureCall{{driver.ExposureManual, 50000}}, m.exposures)
	assert.Equal(t, ptr(50.0), c.Current().ExposureTimeMS)
	assert.False(t, c.Current().AutoExposure)
}

func TestApplyAutoExposure(t *testing.T) {
	m := &setterMock{}
	c := New()

	require.NoError(t, c.Apply(m, fullCapability, Settings{AutoExposure: true, ExposureTimeMS: ptr(500.0)}))
	assert.Equal(t, []exposureCall{{driver.ExposureAuto, 0}}, m.exposures)
	assert.True(t, c.Current().AutoExposure)
}

func TestApplyExposureOutOfRange(t *testing.T) {
	m := &setterMock{}
	c := New()
	require.NoError(t, c.Apply(m, fullCapability, Settings{ExposureTimeMS: ptr(20.0)}))

	for _, ms := range []float64{0, 0.05, 100.5, 150} {
		err := c.Apply(m, fullCapability, Settings{ExposureTimeMS: ptr(ms)})
		assert.ErrorIs(t, err, availability.ErrParameterRejected, "%gms", ms)
	}
	assert.Len(t, m.exposures, 1, "rejected values must not reach the device")
	assert.Equal(t, ptr(20.0), c.Current().ExposureTimeMS)
}

func TestApplyWithoutExposure(t *testing.T) {
	m := &setterMock{}
	c := New()
	require.NoError(t, c.Apply(m, fullCapability, Settings{ExposureTimeMS: ptr(20.0)}))

	require.NoError(t, c.Apply(m, fullCapability, Settings{AnalogGain: ptr(3.0)}))
	assert.Len(t, m.exposures, 1)
	assert.Equal(t, []float64{3}, m.gains)
	assert.Equal(t, ptr(20.0), c.Current().ExposureTimeMS)
	assert.Equal(t, ptr(3.0), c.Current().AnalogGain)
}

func TestApplyAllParameters(t *testing.T) {
	m := &setterMock{}
	c := New()

	err := c.Apply(m, fullCapability, Settings{
		ExposureTimeMS: ptr(10.0),
		AnalogGain:     ptr(2.5),
		ROIPreset:      ptr(1),
		FrameRate:      ptr(15.0),
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5}, m.gains)
	assert.Equal(t, []int{1}, m.presets)
	assert.Equal(t, []float64{15}, m.rates)

	cur := c.Current()
	require.NotNil(t, cur.AnalogGain)
	assert.Equal(t, 2.5, *cur.AnalogGain)
	require.NotNil(t, cur.ROIPreset)
	assert.Equal(t, 1, *cur.ROIPreset)
	require.NotNil(t, cur.FrameRate)
	assert.Equal(t, 15.0, *cur.FrameRate)
}

func TestApplyFrameRateUnsupported(t *testing.T) {
	m := &setterMock{}
	c := New()

	err := c.Apply(m, driver.Capability{}, Settings{ExposureTimeMS: ptr(10.0), FrameRate: ptr(30.0)})
	assert.ErrorIs(t, err, availability.ErrParameterRejected)
	assert.Empty(t, m.rates)
	assert.Len(t, m.exposures, 1)
	assert.Nil(t, c.Current().FrameRate)
}

func TestApplyRejectionsJoined(t *testing.T) {
	m := &setterMock{}
	c := New()
	require.NoError(t, c.Apply(m, fullCapability, Settings{ExposureTimeMS: ptr(10.0), AnalogGain: ptr(1.0)}))

	m.fail = availability.Errorf(availability.KindParameterRejected, "test", "nope")
	err := c.Apply(m, fullCapability, Settings{ExposureTimeMS: ptr(30.0), AnalogGain: ptr(4.0), ROIPreset: ptr(2)})
	require.Error(t, err)

	var joined interface{ Unwrap() []error }
	require.True(t, errors.As(err, &joined))
	assert.Len(t, joined.Unwrap(), 3)

	cur := c.Current()
	assert.Equal(t, ptr(10.0), cur.ExposureTimeMS)
	assert.Equal(t, 1.0, *cur.AnalogGain)
	assert.Nil(t, cur.ROIPreset)
}

func TestApplyWhileStreaming(t *testing.T) {
	sdk := vendortest.New(vendortest.ColorDevice("cam"))
	sdk.SetFrameInterval(2 * time.Millisecond)
	r := session.NewRegistry(
		driver.NewManager(vendor.NewBackend(sdk)),
		session.WithCaptureOptions(capture.WithReadTimeout(20*time.Millisecond)),
	)

	s, err := r.Start("viewer")
	require.NoError(t, err)
	defer r.End("viewer")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	before, err := s.Stream().Next(ctx)
	require.NoError(t, err)

	c := New()
	require.NoError(t, c.Apply(s.Source(), s.Capability(), Settings{ExposureTimeMS: ptr(50.0), FrameRate: ptr(10.0)}))
	assert.ErrorIs(t, c.Apply(s.Source(), s.Capability(), Settings{ExposureTimeMS: ptr(200.0)}), availability.ErrParameterRejected)

	calls := sdk.Calls()
	require.NotEmpty(t, calls.Exposures)
	assert.Equal(t, 50000.0, calls.Exposures[len(calls.Exposures)-1])
	assert.Equal(t, []float64{10}, calls.FrameRates)

	after, err := s.Stream().Next(ctx)
	require.NoError(t, err)
	assert.Greater(t, after.Sequence(), before.Sequence())
	assert.Equal(t, capture.StateRunning, s.Stream().State())
	assert.Equal(t, 1, calls.Play, "the stream must not be restarted")
}
