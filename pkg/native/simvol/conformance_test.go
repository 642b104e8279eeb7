package simvol_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/gfapi/pkg/native"
	"github.com/marmos91/gfapi/pkg/native/nativetest"
	"github.com/marmos91/gfapi/pkg/native/simvol"
)

func TestConformance(t *testing.T) {
	suite := &nativetest.VolumeTestSuite{
		NewVolume: func(t *testing.T) native.Volume {
			drv := simvol.NewDriver(simvol.Config{})
			t.Cleanup(func() { _ = drv.Close() })

			vol, err := drv.New(native.MustCString("gv0"))
			require.NoError(t, err)

			ret, err := vol.SetVolfileServer(native.MustCString(native.Transport), native.MustCString("localhost"), native.DefaultPort)
			require.Zero(t, ret, "set volfile server: %v", err)
			ret, err = vol.Init()
			require.Zero(t, ret, "init: %v", err)
			return vol
		},
	}
	suite.Run(t)
}
