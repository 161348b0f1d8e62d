package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecam/camcore/pkg/driver"
)

func TestBackendsVendorFirst(t *testing.T) {
	bs := backends(true)
	require.Len(t, bs, 2)
	assert.Equal(t, driver.VendorDevice, bs[0].Kind())
	assert.Equal(t, driver.GenericWebcam, bs[1].Kind())

	ids := driver.NewManager(bs...).Enumerate()
	require.NotEmpty(t, ids)
	assert.Equal(t, driver.VendorDevice, ids[0].Kind)

	bs = backends(false)
	require.Len(t, bs, 1)
	assert.Equal(t, driver.GenericWebcam, bs[0].Kind())
}
