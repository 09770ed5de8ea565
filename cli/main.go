package main

import (
	"io"
	"os"

	"github.com/lithammer/dedent"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/kelda/licensemaker/cli/initkeys"
	"github.com/kelda/licensemaker/cli/makelicense"
	"github.com/kelda/licensemaker/cli/util"
	"github.com/kelda/licensemaker/pkg/config"
	"github.com/kelda/licensemaker/pkg/errors"
	"github.com/kelda/licensemaker/pkg/keys"
	"github.com/kelda/licensemaker/pkg/license"
	"github.com/kelda/licensemaker/pkg/version"
)

func main() {
	os.Exit(run(os.Args[1:], afero.NewOsFs(), os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, fs afero.Fs, out, errOut io.Writer) int {
	rootCmd := newRootCommand(fs)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	if err := rootCmd.Execute(); err != nil {
		errors.PrintFatalError(errOut, err)
		return errors.ExitCode(err)
	}
	return 0
}

func newRootCommand(fs afero.Fs) *cobra.Command {
	var (
		cfg        config.Config
		flagCfg    config.Config
		configPath string
		doInit     bool
		doMake     bool
		makeOpts   makelicense.Options
	)

	store := func() *keys.Store {
		return keys.NewStore(fs, cfg.KeyDir)
	}
	issuer := func() *license.Issuer {
		return license.NewIssuer(store(), license.NewFileWriter(fs, cfg.LicenseDir), cfg.Product)
	}

	rootCmd := &cobra.Command{
		Use:   "licensemaker",
		Short: "Issue signed offline licenses",
		Long: dedent.Dedent(`
		licensemaker signs offline licenses with an RSA key that lives in the
		key directory. Run --init once to create the key, then --make for each
		customer.`),
		Example: dedent.Dedent(`
		  licensemaker --init
		  licensemaker --make --name "Jane Doe" --email jane@example.com --plan Pro --lifetime 1`),
		Version: version.Version,
		Args:    cobra.NoArgs,

		// run prints the error, so we silence errors and usage here to avoid
		// double printing.
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log.SetOutput(cmd.ErrOrStderr())
			if err := license.CheckCrypto(); err != nil {
				return err
			}

			loaded, err := config.Load(fs, configPath, flagCfg)
			if err != nil {
				return err
			}
			cfg = loaded
			log.SetLevel(cfg.Level())
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			switch {
			case doInit:
				return initkeys.Run(store(), out, util.IsTerminal(out))
			case doMake:
				return makelicense.Run(issuer(), makeOpts, out)
			default:
				return cmd.Help()
			}
		},
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.WithKind(errors.InvalidArguments, err)
	})

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&configPath, "config", "", "YAML config file (default "+config.DefaultFile+" if present)")
	persistent.StringVar(&flagCfg.KeyDir, "key-dir", "", "directory holding the signing keypair (default \"keys\")")
	persistent.StringVar(&flagCfg.LicenseDir, "license-dir", "", "directory issued licenses are written to (default \"licenses\")")
	persistent.StringVar(&flagCfg.Product, "product", "", "product name stamped into licenses (default \""+license.DefaultProduct+"\")")
	persistent.StringVar(&flagCfg.LogLevel, "log-level", "", "log level: debug, info, warn or error (default \"info\")")

	flags := rootCmd.Flags()
	flags.BoolVar(&doInit, "init", false, "generate keys and print the public key SPKI base64")
	flags.BoolVar(&doMake, "make", false, "make a license (requires --name and --email)")
	makeOpts.AddFlags(flags)

	rootCmd.AddCommand(
		initkeys.New(store),
		makelicense.New(issuer),
	)
	return rootCmd
}
