package main

import (
	"io/ioutil"
	"os"

	"github.com/cloudflare/data-onion/src/onion"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var wrapOut string

var wrapCmd = &cobra.Command{
	Use:   "wrap <file>",
	Short: "Seal a plaintext in every layer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, ls, err := loadLayers()
		if err != nil {
			return err
		}

		text, err := readInput(args[0])
		if err != nil {
			return err
		}

		wrapped, err := onion.Wrap(ls, text)
		if err != nil {
			return err
		}

		if wrapOut == "" {
			_, err = os.Stdout.WriteString(wrapped)
			return err
		}

		return errors.Wrapf(ioutil.WriteFile(wrapOut, []byte(wrapped), 0o644), "write %s", wrapOut)
	},
}

func init() {
	wrapCmd.Flags().StringVarP(&wrapOut, "out", "o", "", "file to write the onion to (default stdout)")

	rootCmd.AddCommand(wrapCmd)
}
