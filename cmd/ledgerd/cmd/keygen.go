package cmd

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgxcyu/ledgerd/crypto"
	"github.com/pgxcyu/ledgerd/internal/util"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate server key material",
	Long: `Generates a fresh SM2 keypair for pre-login credential encryption,
an SM4 key for wrapping refresh tokens, and secrets for request signing
and token issuance. Print once, store in your secret manager.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		priv, pub, err := crypto.GenerateSM2KeyPair()
		if err != nil {
			return fmt.Errorf("generating SM2 keypair: %w", err)
		}

		sm4Key, err := util.RandomBytes(16)
		if err != nil {
			return fmt.Errorf("generating SM4 key: %w", err)
		}
		signingSecret, err := util.RandomBytes(32)
		if err != nil {
			return fmt.Errorf("generating signing secret: %w", err)
		}
		tokenSecret, err := util.RandomBytes(32)
		if err != nil {
			return fmt.Errorf("generating token secret: %w", err)
		}

		fmt.Printf("LEDGERD_SM2_PRIVATE_KEY=%s\n", priv)
		fmt.Printf("LEDGERD_SM2_PUBLIC_KEY=%s\n", pub)
		fmt.Printf("LEDGERD_REFRESH_TOKEN_KEY=%s\n", hex.EncodeToString(sm4Key))
		fmt.Printf("LEDGERD_SIGNING_KEYS=default=%s\n", base64.StdEncoding.EncodeToString(signingSecret))
		fmt.Printf("LEDGERD_TOKEN_SECRET=%s\n", base64.StdEncoding.EncodeToString(tokenSecret))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
