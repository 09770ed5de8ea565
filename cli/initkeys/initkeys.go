package initkeys

import (
	"fmt"
	"io"

	"github.com/lithammer/dedent"
	"github.com/spf13/cobra"

	"github.com/kelda/licensemaker/cli/util"
	"github.com/kelda/licensemaker/pkg/keys"
)

// New returns the `init` command. store is called after the configuration
// has been loaded.
func New(store func() *keys.Store) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate the signing keypair and print the public key",
		Long: dedent.Dedent(`
		Generate a 2048-bit RSA signing keypair and print the public key as
		base64 SubjectPublicKeyInfo, ready to embed in the application that
		verifies licenses.

		If both key files already exist, nothing is regenerated and the stored
		public key is printed again. Delete the key files to start over.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			return Run(store(), out, util.IsTerminal(out))
		},
	}
}

// Run provisions the keypair and prints the public key to out.
func Run(store *keys.Store, out io.Writer, spin bool) error {
	initialized, err := store.Initialized()
	if err != nil {
		return err
	}

	var prov keys.Provisioned
	ensure := func() (err error) {
		prov, err = store.EnsureKeys()
		return err
	}
	if initialized {
		err = ensure()
	} else {
		err = util.WithProgress(out, fmt.Sprintf("Generating RSA keypair (%d-bit)…", keys.Bits), spin, ensure)
	}
	if err != nil {
		return err
	}

	if prov.Created {
		fmt.Fprint(out, "Done. Public SPKI (paste into index.html PUBLIC_KEY_SPKI_B64):\n\n")
	} else {
		fmt.Fprint(out, "Keys already exist.\nPublic SPKI (paste into index.html):\n\n")
	}
	fmt.Fprintln(out, prov.PublicKeySPKI)
	fmt.Fprintf(out, "\nFingerprint: %s\nCID:         %s\n", prov.Fingerprint.SHA256, prov.Fingerprint.CID)
	return nil
}
