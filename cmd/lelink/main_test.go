package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/muxable/lelink/pkg/config"
	"github.com/muxable/lelink/pkg/l2cap"
	"github.com/muxable/lelink/pkg/link"
	"github.com/muxable/lelink/pkg/llcp"
	"github.com/muxable/lelink/pkg/pdu"
	"github.com/muxable/lelink/pkg/queue"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// resetFlags restores the flags of every command to their defaults.
func resetFlags(t *testing.T) {
	t.Helper()
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			require.NoError(t, f.Value.Set(f.DefValue))
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	for _, c := range rootCmd.Commands() {
		reset(c.Flags())
	}
}

// execute runs the root command with args and fresh flag values.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "lelink dev\n", out)
}

func TestConfigPrintsEffectiveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lelink.yaml")
	require.NoError(t, os.WriteFile(path, []byte("att:\n  device_name: probe\n"), 0o600))

	out, err := execute(t, "config", "--config", path, "--log-level", "debug")
	require.NoError(t, err)

	var c struct {
		Log struct {
			Level string `toml:"level"`
		} `toml:"log"`
		ATT struct {
			DeviceName string `toml:"device_name"`
			MaxMTU     int    `toml:"max_mtu"`
		} `toml:"att"`
	}
	_, err = toml.Decode(out, &c)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "probe", c.ATT.DeviceName)
	assert.Equal(t, 247, c.ATT.MaxMTU)
}

func TestConfigRejectsInvalidValues(t *testing.T) {
	_, err := execute(t, "config", "--log-level", "loud")
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestServeDeviceFlag(t *testing.T) {
	resetFlags(t)
	t.Cleanup(func() { resetFlags(t) })
	cmd := &cobra.Command{}
	cmd.Flags().AddFlagSet(serveCmd.Flags())
	cmd.Flags().AddFlagSet(rootCmd.PersistentFlags())

	require.NoError(t, cmd.Flags().Set("device", "2"))
	c, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, 2, c.HCI.Device)
}

func TestRequestConnParams(t *testing.T) {
	logger := zaptest.NewLogger(t)
	txp, txc := queue.New(64)
	_, rxc := queue.New(64)
	r := link.NewResponder(txp, rxc, l2cap.NewState(l2cap.NewChannelMap(), l2cap.WithLogger(logger)), link.WithLogger(logger))
	conn := link.NewConnection(1, link.Params{Interval: 24, Timeout: 400})
	p := config.Default().Connection

	requestConnParams(r, conn, p, logger)
	assert.True(t, conn.LLCPInitiated())

	var got llcp.ControlPdu
	require.NoError(t, txc.Consume(func(_ pdu.Header, pp pdu.Pdu) queue.Consume {
		var err error
		got, err = llcp.Unmarshal(pp.(pdu.Control).Payload)
		return queue.Always(err)
	}))
	req, ok := got.(*llcp.ConnectionParamReq)
	require.True(t, ok)
	assert.Equal(t, p.IntervalMin, req.IntervalMin)
	assert.Equal(t, p.IntervalMax, req.IntervalMax)
	assert.Equal(t, p.Timeout, req.Timeout)

	// a second request waits for the first procedure to complete
	requestConnParams(r, conn, p, logger)
	assert.ErrorIs(t, txc.Consume(func(pdu.Header, pdu.Pdu) queue.Consume { return queue.Always(nil) }), queue.ErrEOF)
}
