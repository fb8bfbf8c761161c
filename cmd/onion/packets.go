package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cloudflare/data-onion/src/layers"
	"github.com/cloudflare/data-onion/src/packet"
	"github.com/cloudflare/data-onion/src/payload"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var packetsCmd = &cobra.Command{
	Use:   "packets <file>",
	Short: "List the datagrams carried by a network layer payload",
	Long: "List the datagrams carried by a network layer payload. Each line is flagged\n" +
		"[header checksum, UDP checksum, route] followed by source => destination.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		filter, err := layers.NewFilter(cfg.Layers.Filter)
		if err != nil {
			return err
		}

		text, err := readInput(args[0])
		if err != nil {
			return err
		}

		raw, err := payload.Extract(text)
		if err != nil {
			return err
		}

		return printPackets(os.Stdout, raw, filter)
	},
}

func init() {
	rootCmd.AddCommand(packetsCmd)
}

func mark(ok bool) string {
	if ok {
		return color.GreenString("✔")
	}

	return color.RedString("✘")
}

func printPackets(out io.Writer, raw []byte, filter *packet.Filter) error {
	datagrams, err := packet.Parse(raw)
	if err != nil {
		return err
	}

	var accepted, content int
	for _, d := range datagrams {
		route := d.IP.SourceAddr() == filter.Source &&
			d.IP.DestinationAddr() == filter.Destination &&
			d.UDP.DestinationPort == filter.DestinationPort

		fmt.Fprintf(out, "[%s-%s-%s] %s (%d bytes)\n",
			mark(d.HeaderChecksumValid()), mark(d.ChecksumValid()), mark(route), d, len(d.Content))

		if filter.Accepts(d) {
			accepted++
			content += len(d.Content)
		}
	}

	fmt.Fprintf(out, "%d datagrams, %d accepted, %d content bytes\n", len(datagrams), accepted, content)

	return nil
}
