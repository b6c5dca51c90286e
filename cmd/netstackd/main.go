// SPDX-License-Identifier: MIT

// netstackd runs the userspace TCP/IP stack over a Linux TUN device and
// exposes an interactive console for opening and closing connections.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "netstackd",
	Short: "Userspace TCP/IP stack daemon",
	Long: `netstackd brings up the userspace networking stack on a TUN device.

The daemon loads interfaces and routes from a YAML config, runs the TCP
connection engine over the device, serves Prometheus metrics, and offers
an interactive console for driving connections by hand.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "netstack.yaml", "path to the YAML config")
}
