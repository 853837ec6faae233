// Package main provides uvdhcp, a development DHCP server that hands one fixed
// address to a detector connected directly to this machine.
//
// Give the workstation's adapter the server address statically, run uvdhcp
// with the privileges needed to bind port 67 and power on the detector. Point
// the detector's --log-target at the server address.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/elan-lab/ultravox-elan/internal/buildinfo"
	"github.com/elan-lab/ultravox-elan/internal/dhcpd"
)

type config struct {
	ServerIP  string
	OfferIP   string
	Netmask   string
	Lease     time.Duration
	Interface string
}

var cfg config

var rootCmd = &cobra.Command{
	Use:     "uvdhcp",
	Short:   "Assign a fixed address to a directly connected detector",
	Version: buildinfo.Current().String(),
	Args:    cobra.NoArgs,
	RunE:    runServer,
}

func init() {
	rootCmd.Flags().StringVar(&cfg.ServerIP, "server-ip", dhcpd.DefaultServerIP, "Static address of this machine, also sent as router")
	rootCmd.Flags().StringVar(&cfg.OfferIP, "offer-ip", dhcpd.DefaultOfferIP, "Address handed to the detector")
	rootCmd.Flags().StringVar(&cfg.Netmask, "netmask", dhcpd.DefaultNetmask, "Subnet mask")
	rootCmd.Flags().DurationVar(&cfg.Lease, "lease", dhcpd.DefaultLease, "Lease time")
	rootCmd.Flags().StringVar(&cfg.Interface, "iface", "", "Interface to bind, empty for all")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	serverCfg, err := dhcpd.ParseConfig(cfg.ServerIP, cfg.OfferIP, cfg.Netmask, cfg.Lease, cfg.Interface)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	srv, err := dhcpd.NewServer(&serverCfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "DHCP server running on %s\n", serverCfg.ServerIP)
	fmt.Fprintf(out, "Will assign %s to any device that asks.\n", serverCfg.OfferIP)
	fmt.Fprintln(out, "Press Ctrl+C to stop.")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	err = srv.Serve()
	if ctx.Err() != nil {
		fmt.Fprintln(out, "\nStopped.")
		return nil
	}
	return err
}
