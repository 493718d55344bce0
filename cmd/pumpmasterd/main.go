// Command pumpmasterd runs a standalone PumpMaster against one RS-485 line
// and logs each event's address through logrus at debug level, so events
// only appear with --log-level=debug. It is a thin wiring layer: flag/config
// parsing and logging setup, nothing protocol-specific lives here.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fuelhost/pumpmaster/mkr5"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "pumpmasterd",
		Short: "RS-485 host controller daemon for MKR-5/DART pumps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("device", "/dev/ttyUSB0", "serial device path")
	flags.Int("baud", 9600, "baud rate")
	flags.String("parity", "E", "parity: N, E, or O")
	flags.Bool("rs485", true, "enable kernel RS-485 transceiver control")
	flags.Int("addr-start", 0x50, "first pump bus address")
	flags.Int("addr-end", 0x50, "last pump bus address")
	flags.Duration("poll-interval", mkr5.DefaultPollInterval, "per-address poll spacing")
	flags.Int("nozzle-count", mkr5.DefaultNozzleCount, "nozzles per pump")
	flags.Int("price-cents", mkr5.DefaultPriceUnitCents, "startup broadcast price, in minor currency units")
	flags.Bool("legacy-authorize-byte", false, "emit DCC 0x01 instead of 0x06 for AUTHORIZE")
	flags.String("config", "", "optional config file (yaml/json/toml)")
	flags.String("log-level", "info", "logrus level")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("PUMPMASTERD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	cobra.OnInitialize(func() {
		if path := v.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				logrus.WithError(err).Warn("config file not loaded")
			}
		}
	})

	return cmd
}

func run(v *viper.Viper) error {
	level, err := logrus.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.WithField("service", "pumpmasterd")

	port, err := mkr5.OpenLine(mkr5.LineConfig{
		Device:   v.GetString("device"),
		BaudRate: v.GetInt("baud"),
		Parity:   v.GetString("parity"),
		RS485:    v.GetBool("rs485"),
	})
	if err != nil {
		return fmt.Errorf("open serial line: %w", err)
	}
	defer port.Close()

	transport := mkr5.NewTransport(port, mkr5.DefaultGap, log)

	cfg := mkr5.Config{
		AddrStart:           mkr5.PumpAddress(v.GetInt("addr-start")),
		AddrEnd:             mkr5.PumpAddress(v.GetInt("addr-end")),
		PollInterval:        v.GetDuration("poll-interval"),
		NozzleCount:         v.GetInt("nozzle-count"),
		PriceUnitCents:      v.GetInt("price-cents"),
		LegacyAuthorizeByte: v.GetBool("legacy-authorize-byte"),
	}

	master, err := mkr5.NewPumpMaster(transport, cfg, log)
	if err != nil {
		return fmt.Errorf("configure pump master: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting pump master")
	if err := master.Start(ctx); err != nil {
		return fmt.Errorf("start pump master: %w", err)
	}
	defer master.Stop()

	go logEvents(ctx, log, master.Events())

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func logEvents(ctx context.Context, log *logrus.Entry, events *mkr5.EventQueue) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-events.Wait():
		case <-time.After(time.Second):
		}
		for {
			ev, ok := events.Pop()
			if !ok {
				break
			}
			log.WithField("addr", fmt.Sprintf("0x%02X", byte(ev.Addr))).Debug("event")
		}
	}
}
