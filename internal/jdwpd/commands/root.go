// Package commands implements the jdwpd command line.
package commands

import (
	"fmt"
	"runtime/debug"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/DataExMachina-dev/side-eye-jdwp/internal/logger"
)

func NewRootCommand(log *logger.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jdwpd",
		Short: "Runs a simulated VM with an embedded JDWP engine, or the debug bridge relay",
		Long: `jdwpd hosts the JDWP event engine.

	'jdwpd vm' runs a small simulated runtime that debuggers can attach to over
	a socket or through the bridge. 'jdwpd bridge' runs the relay that VMs
	dial into when they cannot accept connections themselves.`,
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	rootCmd.AddCommand(NewVMCommand(log.Logger))
	rootCmd.AddCommand(NewBridgeCommand(log.Logger))

	log.AddLevelFlag(rootCmd.PersistentFlags())
	return rootCmd
}

// MakePanicError turns a recovered value into an error and logs it with the
// stack. It returns nil when nothing panicked.
func MakePanicError(panicVal any, log logr.Logger) error {
	if panicVal == nil {
		return nil
	}
	err, ok := panicVal.(error)
	if !ok {
		err = fmt.Errorf("%v", panicVal)
	}
	log.Error(err, "A goroutine ended prematurely due to panic", "stack", string(debug.Stack()))
	return err
}
