package makelicense

import (
	"fmt"
	"io"

	"github.com/lithammer/dedent"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kelda/licensemaker/pkg/errors"
	"github.com/kelda/licensemaker/pkg/license"
)

// Options are the operator's inputs for a license.
type Options struct {
	Name  string
	Email string
	Plan  string
	// Lifetime is an integer flag so that "--lifetime 0" works; any non-zero
	// value means a lifetime license.
	Lifetime int
}

// AddFlags registers the license flags on flags.
func (opts *Options) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&opts.Name, "name", "", "licensee name (required)")
	flags.StringVar(&opts.Email, "email", "", "licensee email (required)")
	flags.StringVar(&opts.Plan, "plan", license.DefaultPlan, "plan to license")
	flags.IntVar(&opts.Lifetime, "lifetime", 1, "1 for a lifetime license, 0 otherwise")
}

// Validate checks the required flags. Any non-empty value is accepted,
// whitespace included.
func (opts Options) Validate() error {
	if opts.Name == "" || opts.Email == "" {
		return errors.WithKind(errors.InvalidArguments,
			errors.NewFriendlyError("--make requires --name and --email"))
	}
	return nil
}

func (opts Options) Request() license.Request {
	return license.Request{
		Name:     opts.Name,
		Email:    opts.Email,
		Plan:     opts.Plan,
		Lifetime: opts.Lifetime != 0,
	}
}

// New returns the `make` command. issuer is called after the configuration
// has been loaded.
func New(issuer func() *license.Issuer) *cobra.Command {
	var opts Options
	cmd := &cobra.Command{
		Use:   "make",
		Short: "Sign a license for a customer",
		Long: dedent.Dedent(`
		Sign a license for a customer and save it under the license directory
		as <issued_at>_<email>.lic. The license string is printed as well.

		Run init first to create the signing key.`),
		Example: "  licensemaker make --name \"Jane Doe\" --email jane@example.com --plan Pro --lifetime 1",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Run(issuer(), opts, cmd.OutOrStdout())
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

// Run issues a license and prints it to out.
func Run(iss *license.Issuer, opts Options, out io.Writer) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	issued, err := iss.Issue(opts.Request())
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"path": issued.Path,
		"cid":  issued.CID,
	}).Info("Wrote license")
	fmt.Fprintf(out, "\nLICENSE STRING:\n\n%s\n", issued.License)
	return nil
}
