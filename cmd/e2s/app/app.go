package app

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/zalando-incubator/e2s/pkg/log"
)

var opts struct {
	Verbose bool
}

// NewCommand builds the e2s root command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "e2s",
		Short: "etcd cluster supervisor",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.Verbose {
				log.SetLevel(zapcore.DebugLevel)
			}
		},
	}

	cmd.AddCommand(
		newRunCmd(),
		newVersionCmd(),
	)

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose log output (debug)")
	return cmd
}
