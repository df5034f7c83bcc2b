// Command memhub signs plugin artifacts and reads or writes keys through a
// configured hub.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	_ "xdao.co/memhub/storage/bolt"
	_ "xdao.co/memhub/storage/grpcstore"
	_ "xdao.co/memhub/storage/localfs"
	_ "xdao.co/memhub/storage/memory"
	_ "xdao.co/memhub/storage/s3"
	_ "xdao.co/memhub/storage/sqlstore"
	_ "xdao.co/memhub/storage/vector"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// usageError marks errors that exit with status 2.
type usageError struct{ error }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

type globals struct {
	configPath string
	keysDir    string

	in          io.Reader
	out, errOut io.Writer
}

func run(args []string, in io.Reader, out, errOut io.Writer) int {
	g := &globals{in: in, out: out, errOut: errOut}
	root := newRootCmd(g)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(context.Background())
	if err == nil {
		return 0
	}
	fmt.Fprintf(errOut, "memhub: %v\n", err)
	var ue usageError
	if errors.As(err, &ue) {
		return 2
	}
	return 1
}

func newRootCmd(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:           "memhub",
		Short:         "Memory hub client and plugin signing tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	root.PersistentFlags().StringVar(&g.configPath, "config", os.Getenv("MEMHUB_CONFIG"), "Hub configuration file (YAML, JSON or TOML)")
	root.PersistentFlags().StringVar(&g.keysDir, "keys-dir", "", "Key store directory (default ~/.memhub/keys)")

	root.AddCommand(
		newKeygenCmd(g),
		newSignCmd(g),
		newVerifyCmd(g),
		newPutCmd(g),
		newGetCmd(g),
		newExportCmd(g),
		newImportCmd(g),
		newBackendsCmd(g),
	)
	return root
}
