package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var parseCmd = &cobra.Command{
	Use:   "parse [TEXT|-]",
	Short: "Run the field extractor on a message and print the result",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := parseInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		_, err = getApp().Parse(text)
		return err
	},
}

func parseInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}
