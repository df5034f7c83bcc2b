package main

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"xdao.co/memhub/keys"
	"xdao.co/memhub/loader"
)

func newKeygenCmd(g *globals) *cobra.Command {
	var (
		name    string
		seedHex string
		scheme  string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "keygen --name <name>",
		Short: "Create a signing key and print its public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := keys.CheckKeyName(name); err != nil {
				return usagef("invalid --name: %v", err)
			}
			sch, err := keys.ParseScheme(scheme)
			if err != nil {
				return usageError{err}
			}
			var seed []byte
			if seedHex != "" {
				if seed, err = keys.ParseSeedHex(seedHex); err != nil {
					return usagef("invalid --seed-hex: %v", err)
				}
			} else if seed, err = keys.GenerateSeed(rand.Reader); err != nil {
				return err
			}
			ks, err := keys.CreateKeyStore(g.keysDir)
			if err != nil {
				return err
			}
			path, err := ks.Save(name, seed, force)
			if err != nil {
				return fmt.Errorf("write key: %w", err)
			}
			signer, err := keys.NewSigner(sch, seed)
			if err != nil {
				return err
			}
			fmt.Fprintf(g.out, "Public key: %s\n", signer.Public())
			fmt.Fprintf(g.out, "Stored at: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Key name")
	cmd.Flags().StringVar(&seedHex, "seed-hex", "", "Optional 32-byte seed as 64 hex chars (for reproducible setups)")
	cmd.Flags().StringVar(&scheme, "scheme", string(keys.SchemeEd25519), "Signature scheme: ed25519 or dilithium3")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing key")
	return cmd
}

func newSignCmd(g *globals) *cobra.Command {
	var (
		name    string
		seedHex string
		keyFile string
		scheme  string
	)
	cmd := &cobra.Command{
		Use:   "sign <artifact>",
		Short: "Write a detached signature next to a plugin artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sch, err := keys.ParseScheme(scheme)
			if err != nil {
				return usageError{err}
			}
			ks, err := keys.CreateKeyStore(g.keysDir)
			if err != nil {
				return err
			}
			seed, err := ks.LoadSeed(seedHex, name, keyFile)
			if err != nil {
				return usagef("signing key: %v", err)
			}
			signer, err := keys.NewSigner(sch, seed)
			if err != nil {
				return err
			}
			art := loader.Artifact{Path: args[0]}
			code, err := os.ReadFile(art.Path)
			if err != nil {
				return err
			}
			if err := os.WriteFile(art.SignaturePath(), signer.Sign(code), 0o644); err != nil {
				return err
			}
			fmt.Fprintln(g.out, art.SignaturePath())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "key", "", "Stored key name")
	cmd.Flags().StringVar(&seedHex, "seed-hex", "", "Seed as 64 hex chars")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "File holding a hex seed")
	cmd.Flags().StringVar(&scheme, "scheme", string(keys.SchemeEd25519), "Signature scheme: ed25519 or dilithium3")
	return cmd
}

func newVerifyCmd(g *globals) *cobra.Command {
	var pubKey string
	cmd := &cobra.Command{
		Use:   "verify --public-key <key> <artifact>",
		Short: "Check an artifact against its detached signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := keys.ParsePublicKey(pubKey)
			if err != nil {
				return usagef("invalid --public-key: %v", err)
			}
			art := loader.Artifact{Path: args[0]}
			sig, err := os.ReadFile(art.SignaturePath())
			if err != nil {
				return err
			}
			code, err := os.ReadFile(art.Path)
			if err != nil {
				return err
			}
			if err := keys.Verify(pub, code, sig); err != nil {
				return err
			}
			fmt.Fprintf(g.out, "OK %s\n", pub.Fingerprint())
			return nil
		},
	}
	cmd.Flags().StringVar(&pubKey, "public-key", "", "Public key (<scheme>:<base64> or hex ed25519)")
	return cmd
}
