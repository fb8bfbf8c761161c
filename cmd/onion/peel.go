package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cloudflare/data-onion/src/common"
	"github.com/cloudflare/data-onion/src/layers"
	"github.com/cloudflare/data-onion/src/onion"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var peelCmd = &cobra.Command{
	Use:   "peel <file>",
	Short: "Peel every layer of an onion, writing each payload to its own file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ls, err := loadLayers()
		if err != nil {
			return err
		}

		text, err := readInput(args[0])
		if err != nil {
			return err
		}

		sink := &onion.DirSink{Dir: cfg.Output.Dir, Pattern: cfg.Output.Pattern}

		return runPeel(os.Stdout, logger, ls, sink, text)
	},
}

func init() {
	peelCmd.Flags().StringP("out", "o", "", "directory the payloads are written to")
	_ = vp.BindPFlag("output.dir", peelCmd.Flags().Lookup("out"))

	rootCmd.AddCommand(peelCmd)
}

// reportSink writes each layer to disk and reports it on out.
type reportSink struct {
	*onion.DirSink
	out   io.Writer
	names []string
}

func (s *reportSink) Put(index int, text string) error {
	if err := s.DirSink.Put(index, text); err != nil {
		return err
	}

	fmt.Fprintf(s.out, "%s layer %d %-8s -> %s\n", color.GreenString("✔"), index-1, s.names[index-1], s.Path(index))

	return nil
}

func runPeel(out io.Writer, log logrus.FieldLogger, ls []layers.Layer, sink *onion.DirSink, text string) error {
	p := &onion.Peeler{
		Layers: ls,
		Sink:   &reportSink{DirSink: sink, out: out, names: layers.Names(ls)},
		Log:    log,
	}

	if _, err := p.Peel(text); err != nil {
		fmt.Fprintf(out, "%s %v (%s)\n", color.RedString("✘"), err, common.Kind(err))
		return err
	}

	return nil
}
