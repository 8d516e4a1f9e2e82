package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/muxable/lelink/pkg/att"
	"github.com/muxable/lelink/pkg/config"
	"github.com/muxable/lelink/pkg/hci"
	"github.com/muxable/lelink/pkg/host"
	"github.com/muxable/lelink/pkg/l2cap"
	"github.com/muxable/lelink/pkg/link"
	"github.com/muxable/lelink/pkg/llcp"
	"github.com/muxable/lelink/pkg/logging"
	"github.com/muxable/lelink/pkg/queue"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// commandTimeout bounds every HCI command issued outside of a connection.
const commandTimeout = 2 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Advertise and serve connections until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntP("device", "d", -1, "HCI device index, -1 for the first available one")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger, err := logging.New(level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logging.Install(logger)()

	cmd.SilenceUsage = true

	sck, err := hci.NewSocket(cfg.HCI.Device)
	if err != nil {
		return fmt.Errorf("open hci device %d: %w", cfg.HCI.Device, err)
	}
	logger.Info("hci user channel bound", zap.Int("device", sck.Device()))
	a := hci.NewAdapter(sck, hci.WithLogger(logger))
	defer a.Close()

	ctx := cmd.Context()
	if err := setup(ctx, a, cfg, logger); err != nil {
		return err
	}
	for {
		if err := advertise(ctx, a, true); err != nil {
			return err
		}
		c, err := a.Accept(ctx)
		if errors.Is(err, context.Canceled) {
			_ = advertise(context.Background(), a, false)
			return nil
		}
		if err != nil {
			return err
		}
		if err := serveConnection(ctx, c, cfg, logger); err != nil {
			logger.Warn("connection ended", zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// setup resets the controller and configures the events and advertising the
// peripheral relies on.
func setup(ctx context.Context, a *hci.Adapter, cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := a.Reset(ctx); err != nil {
		return err
	}
	addr, err := a.ReadBDAddr(ctx)
	if err != nil {
		return err
	}
	if err := a.SetEventMask(ctx, hci.EventMaskDisconnectionCompleteEvent|hci.EventMaskLEMetaEvent); err != nil {
		return err
	}
	if err := a.LESetEventMask(ctx,
		hci.LEEventMaskConnectionCompleteEvent|
			hci.LEEventMaskConnectionUpdateCompleteEvent); err != nil {
		return err
	}
	bs, err := a.LEReadBufferSize(ctx)
	if err != nil {
		return err
	}
	if bs.TotalNumLEACLDataPackets == 0 {
		logger.Warn("controller reports no dedicated LE ACL buffers")
	}
	if err := a.LESetAdvertisingParameters(ctx, &hci.LESetAdvertisingParametersCommandPacket{
		AdvertisingIntervalMin: cfg.Advertising.IntervalMin,
		AdvertisingIntervalMax: cfg.Advertising.IntervalMax,
	}); err != nil {
		return err
	}
	if err := a.LESetAdvertisingData(ctx,
		hci.FlagsDataTypeLEGeneralDiscoverableMode|hci.FlagsDataTypeBREDRNotSupported,
		hci.CompleteLocalName(cfg.ATT.DeviceName)); err != nil {
		return err
	}
	logger.Info("controller ready",
		zap.Stringer("address", addr),
		zap.Uint16("acl_mtu", bs.LEACLDataPacketLength),
		zap.Uint8("acl_packets", bs.TotalNumLEACLDataPackets))
	return nil
}

func advertise(ctx context.Context, a *hci.Adapter, enable bool) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return a.LESetAdvertisingEnable(ctx, enable)
}

// serveConnection runs the bridge and the responder of one connection until
// either ends. The connection is terminated unless the peer already did.
func serveConnection(ctx context.Context, c *hci.Conn, cfg *config.Config, logger *zap.Logger) error {
	logger = logger.With(zap.Uint16("handle", c.ConnectionHandle), zap.Stringer("peer", c.PeerAddress))
	logger.Info("connected",
		zap.Uint16("interval", c.ConnectionInterval),
		zap.Uint16("latency", c.PeripheralLatency),
		zap.Uint16("timeout", c.SupervisionTimeout))

	txp, txc := queue.New(cfg.Queue.TX)
	rxp, rxc := queue.New(cfg.Queue.RX)
	m := l2cap.NewChannelMap()
	m.Register(l2cap.ChannelIDAttributeProtocol, att.NewServer(
		att.NewGAPTable(cfg.ATT.DeviceName, cfg.ATT.Appearance),
		att.WithLogger(logger),
		att.WithMaxMTU(cfg.ATT.MaxMTU)))
	r := link.NewResponderFromConfig(link.StaticConfig{TX: txp, RX: rxc, Mapper: m},
		link.WithLogger(logger),
		link.WithL2CAPOptions(
			l2cap.WithMaxSDU(cfg.L2CAP.MaxSDU),
			l2cap.WithFragmentSize(cfg.L2CAP.FragmentSize)))
	conn := link.NewConnection(c.ConnectionHandle, link.Params{
		Interval: c.ConnectionInterval,
		Latency:  c.PeripheralLatency,
		Timeout:  c.SupervisionTimeout,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	opts := []host.Option{host.WithLogger(logger), host.WithPollInterval(cfg.PollInterval)}

	// the responder is driven from a single goroutine, requests included
	served := make(chan error, 1)
	go func() {
		defer cancel()
		if cfg.Connection.Request {
			requestConnParams(r, conn, cfg.Connection, logger)
		}
		served <- host.Serve(ctx, r, opts...)
	}()
	err := host.NewBridge(c, conn, rxp, txc, opts...).Run(ctx)
	cancel()
	err = multierr.Append(err, <-served)

	if errors.Is(err, host.ErrDisconnected) || errors.Is(err, hci.ErrClosed) {
		return nil
	}
	dctx, dcancel := context.WithTimeout(context.Background(), commandTimeout)
	defer dcancel()
	return multierr.Append(err, c.Disconnect(dctx, hci.StatusRemoteUserTerminated))
}

func requestConnParams(r *link.Responder, conn *link.Connection, p config.Connection, logger *zap.Logger) {
	tx, err := r.LLCP(conn)
	if err != nil {
		logger.Warn("connection parameters not requested", zap.Error(err))
		return
	}
	// failures are logged by the request itself
	_ = tx.RequestConnParams(llcp.ConnectionParamReq{
		ConnectionParams: llcp.NewConnectionParams(p.IntervalMin, p.IntervalMax, p.Latency, p.Timeout),
	})
}
