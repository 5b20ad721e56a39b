package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"nsh.computer/nsh/flags"
	"nsh.computer/nsh/nshserver"
	"nsh.computer/nsh/reactor"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags.ServerFlags
	cmd := &cobra.Command{
		Use:           "nshd",
		Short:         "Run an nsh relay node",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(&f)
		},
	}
	flags.DefineServerFlags(cmd.Flags(), &f)
	return cmd
}

func serve(f *flags.ServerFlags) error {
	log := logrus.NewEntry(f.Logger())

	sc, err := flags.ServerConfigFromFlags(f)
	if err != nil {
		log.Errorf("error loading config: %s", err)
		return err
	}
	p := nshserver.NewProcessor(nshserver.ProcessorConfig{
		Signer:         sc.Key,
		Proxy:          sc.Proxy,
		AuthorizedKeys: sc.AuthorizedKeys,
		Hops:           sc.KnownHops,
		Log:            log,
	})
	s, err := nshserver.New(sc.ListenAddress, p, log)
	if err != nil {
		log.Error(err)
		return err
	}
	log.Infof("nshd %s listening on %s", sc.Key.Public, s.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	r := reactor.New(s, reactor.Config{TickInterval: sc.TickInterval, Log: log})
	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error(err)
		return err
	}
	log.Info("shutting down")
	return nil
}
