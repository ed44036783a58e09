package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/fabhost/agent/internal/chainerr"
	"github.com/fabhost/agent/internal/wallet"
)

func newWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Generate, import, back up, or inspect the operator's signing key",
	}
	cmd.AddCommand(newWalletGenerateCmd(), newWalletImportCmd(), newWalletBackupCmd(), newWalletAddressCmd(), newWalletBalanceCmd())
	return cmd
}

func newWalletGenerateCmd() *cobra.Command {
	var mnemonicBits int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new operator wallet from a fresh mnemonic",
		RunE: func(cmd *cobra.Command, args []string) error {
			phrase, err := wallet.NewMnemonic(mnemonicBits)
			if err != nil {
				return err
			}
			w, err := wallet.DeriveFromMnemonic(phrase, wallet.DefaultDerivationPath)
			if err != nil {
				return err
			}

			pterm.DefaultHeader.Println("new operator wallet")
			pterm.Warning.Println("write this mnemonic down now; it will not be shown again")
			pterm.Println()
			pterm.Println(phrase)
			pterm.Println()
			pterm.Success.Printfln("address:     %s", w.Address().Hex())
			pterm.Success.Printfln("private key: %s", w.PrivateKeyHex())
			return nil
		},
	}
	cmd.Flags().IntVar(&mnemonicBits, "entropy-bits", 256, "mnemonic entropy, 128 for 12 words or 256 for 24 words")
	return cmd
}

func newWalletImportCmd() *cobra.Command {
	var mnemonic string
	var privateKey string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an existing wallet from a mnemonic or private key",
		RunE: func(cmd *cobra.Command, args []string) error {
			var w *wallet.Wallet
			var err error
			switch {
			case mnemonic != "":
				w, err = wallet.ImportMnemonic(mnemonic)
			case privateKey != "":
				w, err = wallet.ImportPrivateKey(privateKey)
			default:
				return chainerr.New(chainerr.Validation, "one of --mnemonic or --private-key is required")
			}
			if err != nil {
				return err
			}
			pterm.Success.Printfln("imported address: %s", w.Address().Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "BIP-39 mnemonic phrase")
	cmd.Flags().StringVar(&privateKey, "private-key", "", "hex-encoded private key")
	return cmd
}

func newWalletBackupCmd() *cobra.Command {
	var privateKey string
	var out string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write an encrypted go-ethereum keystore file for the given key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if privateKey == "" {
				return chainerr.New(chainerr.Validation, "--private-key is required")
			}
			w, err := wallet.ImportPrivateKey(privateKey)
			if err != nil {
				return err
			}

			password, err := pterm.DefaultInteractiveTextInput.WithMask("*").WithDefaultText("keystore password").Show()
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}

			key := &keystore.Key{
				Id:         uuid.New(),
				Address:    w.Address(),
				PrivateKey: w.PrivateKey,
			}
			data, err := keystore.EncryptKey(key, password, keystore.StandardScryptN, keystore.StandardScryptP)
			if err != nil {
				return fmt.Errorf("encrypting keystore: %w", err)
			}

			if out == "" {
				out = fmt.Sprintf("UTC--%s--%s.json", w.Address().Hex(), w.Address().Hex()[2:10])
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("writing keystore file: %w", err)
			}
			pterm.Success.Printfln("wrote encrypted keystore to %s", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&privateKey, "private-key", "", "hex-encoded private key to back up")
	cmd.Flags().StringVar(&out, "out", "", "output path (default: UTC--<address>--<short>.json)")
	return cmd
}

func newWalletAddressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print this agent's wallet address",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, err := bootstrapAgent(ctx, newLogger())
			if err != nil {
				return err
			}
			defer a.Shutdown(ctx)

			w := a.Wallet()
			if w == nil {
				return chainerr.New(chainerr.Auth, "agent is not authenticated: set HOST_PRIVATE_KEY")
			}
			fmt.Println(w.Address().Hex())
			return nil
		},
	}
}

func newWalletBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print this wallet's on-chain token balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, err := bootstrapAgent(ctx, newLogger())
			if err != nil {
				return err
			}
			defer a.Shutdown(ctx)

			balances, err := a.Balances(ctx)
			if err != nil {
				return err
			}
			rows := [][]string{{"token", "balance"}}
			for symbol, bal := range balances {
				rows = append(rows, []string{symbol, bal})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
		},
	}
}
