package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"nsh.computer/nsh/flags"
	"nsh.computer/nsh/keys"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags.KeygenFlags
	cmd := &cobra.Command{
		Use:           "nsh-keygen",
		Short:         "Generate an nsh signing key",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := generate(f.OutputPath(), f.Force)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pub)
			return nil
		},
	}
	flags.DefineKeygenFlags(cmd.Flags(), &f)
	return cmd
}

// generate writes a new private key to path and returns the public key.
func generate(path string, force bool) (keys.SigningPublicKey, error) {
	pair := keys.GenerateNewSigningKeyPair()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return keys.SigningPublicKey{}, err
	}
	mode := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		mode = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	out, err := os.OpenFile(path, mode, 0o600)
	if err != nil {
		return keys.SigningPublicKey{}, err
	}
	defer out.Close()
	if err := keys.EncodeSigningKeyToPEM(out, pair); err != nil {
		return keys.SigningPublicKey{}, errors.Wrapf(err, "write %s", path)
	}
	logrus.Infof("wrote private key to %s", path)
	return pair.Public, out.Close()
}
