// SPDX-License-Identifier: MIT
package main

import (
	"net/http"
	"net/netip"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oskern/netstack/config"
	"github.com/oskern/netstack/ipv4"
	"github.com/oskern/netstack/nbuf"
	"github.com/oskern/netstack/netif"
	"github.com/oskern/netstack/route"
	"github.com/oskern/netstack/stats"
	"github.com/oskern/netstack/tcp"
	"github.com/oskern/netstack/tun"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bring up the stack and open the console",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetLevel(cfg.Level())

	table := route.NewTable(log)
	reg := prometheus.NewRegistry()
	metrics := stats.New(reg)

	stack := tcp.New(table, tcp.Options{
		Logger:     log,
		Metrics:    metrics,
		RTO:        cfg.RTO(),
		MaxRetries: cfg.TCP.MaxRetries,
		MSL:        cfg.MSL(),
	})
	defer stack.Stop()

	intfs := make(map[string]*netif.Intf, len(cfg.Interfaces))
	for _, ic := range cfg.Interfaces {
		dev, err := tun.Open(tun.Config{Name: ic.Name, MTU: ic.MTU, IP: ic.IP, Peer: ic.Peer})
		if err != nil {
			return err
		}
		defer dev.Close()

		addr := netip.MustParseAddr(ic.IP)
		intf := netif.New(dev.Name(), addr, dev.MTU())
		intf.Tx = func(b *nbuf.Buf) error {
			_, err := dev.Write(b.Payload())
			nbuf.Free(b)
			return err
		}
		intfs[ic.Name] = intf

		go rxLoop(log, dev, intf, stack)
		log.WithFields(logrus.Fields{"intf": intf.Name, "ip": addr}).Info("interface up")
	}

	for _, rc := range cfg.Routes {
		prefix := netip.MustParsePrefix(rc.Prefix)
		var gw netip.Addr
		if rc.Gateway != "" {
			gw = netip.MustParseAddr(rc.Gateway)
		}
		table.Add(prefix, gw, intfs[rc.Intf])
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
		log.WithField("addr", cfg.MetricsAddr).Info("metrics listening")
	}

	go tickLoop(stack, cfg)

	return console(stack, log)
}

// rxLoop feeds packets from the device into the engine. A panic in the
// protocol path is logged with its stack before the daemon dies; corrupt
// engine state is not something to limp along with.
func rxLoop(log *logrus.Logger, dev *tun.Device, intf *netif.Intf, stack *tcp.Stack) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("rx loop panic: %v\n%s", r, debug.Stack())
			panic(r)
		}
	}()

	buf := make([]byte, nbuf.Capacity)
	for {
		n, err := dev.Read(buf)
		if err != nil {
			log.WithError(err).Info("rx loop stopped")
			return
		}
		if n == 0 {
			continue
		}

		hdr, ihl, err := ipv4.Parse(buf[:n])
		if err != nil || hdr.Protocol != ipv4.ProtoTCP {
			continue
		}

		b := nbuf.Alloc()
		b.Append(buf[ihl:n])
		stack.Rx(intf, &hdr, b)
		nbuf.Free(b)
	}
}

func tickLoop(stack *tcp.Stack, cfg *config.Config) {
	ticker := time.NewTicker(cfg.TickInterval())
	defer ticker.Stop()
	for range ticker.C {
		stack.Tick()
	}
}
