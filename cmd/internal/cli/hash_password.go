package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"basecampy/cmd/security/password"
)

func newHashPasswordCmd() *cobra.Command {
	var skipPolicy bool

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its encoded hash",
		Long: `hash-password reads one line from stdin and prints the argon2id hash
using the current BASECAMPY_PASSWORD_* and BASECAMPY_ARGON2_* settings.
Useful for seeding records.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := password.FromEnv()
			if err != nil {
				return err
			}

			plain, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if !skipPolicy {
				if err := pw.Validate(plain); err != nil {
					return err
				}
			}

			encoded, err := pw.Hash(plain)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return err
		},
	}

	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "Hash even if the password fails the length policy")

	return cmd
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("read password: empty input")
	}
	return line, nil
}
