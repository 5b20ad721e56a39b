package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"nsh.computer/nsh/command"
	"nsh.computer/nsh/flags"
	"nsh.computer/nsh/nshclient"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags.ClientFlags
	cmd := &cobra.Command{
		Use:   "nsh [flags] <hop> <command...>",
		Short: "Send a command to an nsh node",
		Long: `Send a command to an nsh node and print its reply.

<hop> is an alias from the known hops file or <key>@<host:port>.
The command is ECHO or FORWARD <hop> ECHO. Forwards print nothing.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, &f, args)
		},
	}
	cmd.Flags().SetInterspersed(false)
	flags.DefineClientFlags(cmd.Flags(), &f)
	return cmd
}

func run(cmd *cobra.Command, f *flags.ClientFlags, args []string) error {
	log := logrus.NewEntry(f.Logger())

	cc, err := flags.ClientConfigFromFlags(f)
	if err != nil {
		log.Errorf("error loading config: %s", err)
		return err
	}
	hop, err := command.ResolveHop(args[0], cc.KnownHops)
	if err != nil {
		log.Error(err)
		return err
	}
	c, err := command.Parse(strings.Join(args[1:], " "), cc.KnownHops)
	if err != nil {
		log.Error(err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	log.Debugf("sending %q to %s", c, hop)
	reply, err := nshclient.Exec(ctx, hop.Addr, hop.ID, cc.Key, cc.Proxy, c)
	if err != nil {
		log.Error(err)
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(reply))
	return nil
}
