package main

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app holds state shared by the commands of one invocation.
type app struct {
	v          *viper.Viper
	log        *zap.SugaredLogger
	configFile string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: newViper(), log: zap.NewNop().Sugar()}

	cmd := &cobra.Command{
		Use:   "h5iterate [file]",
		Short: "List the members of a group in an HDF5 file",
		Long: `h5iterate opens an HDF5 file read-only and prints every member of a
group (the root group by default) with its object type: Group, Dataset,
Datatype or Unknown.

Configuration is read from flags, H5ITERATE_* environment variables and
an optional .h5iterate.yaml file, in that order of precedence.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.log.Sync()
		},
		RunE: a.runList,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default: ./.h5iterate.yaml)")
	pf.String(cfgKeyLogLevel, "info", "log level: debug, info, warn or error")

	f := cmd.Flags()
	f.String(cfgKeyGroup, "/", "path of the group to list")
	f.String(cfgKeyOrder, "name", "member order: name or creation")
	f.String(cfgKeyOutput, outputText, "output format: text or json")
	f.BoolP(cfgKeyVerbose, "v", false, "add link type, address and datatype/shape/layout columns")

	_ = a.v.BindPFlag(cfgKeyLogLevel, pf.Lookup(cfgKeyLogLevel))
	for _, key := range []string{cfgKeyGroup, cfgKeyOrder, cfgKeyOutput, cfgKeyVerbose} {
		_ = a.v.BindPFlag(key, f.Lookup(key))
	}

	cmd.AddCommand(newDumpCmd(a))
	return cmd
}

// init loads configuration and builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	if err := readConfigFile(a.v, a.configFile); err != nil {
		return err
	}

	log, err := newLogger(cmd.ErrOrStderr(), a.v.GetString(cfgKeyLogLevel))
	if err != nil {
		return err
	}
	a.log = log
	a.log.Debugw("configuration loaded", "config", a.v.ConfigFileUsed())
	return nil
}
