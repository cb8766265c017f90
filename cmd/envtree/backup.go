package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/envtree/internal/config"
	"github.com/alfredjeanlab/envtree/internal/crypt"
	envsync "github.com/alfredjeanlab/envtree/internal/sync"
	"github.com/alfredjeanlab/envtree/internal/ui"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a JSONL backup of the server database",
	Long: `Write every project and config to a JSONL file using the server's
ENVTREE_* settings. Values are sealed when ENVTREE_ENCRYPTION_KEY is set
unless --plaintext is given. User accounts are never included.`,
	GroupID:           "system",
	PersistentPreRunE: localCommand,
	Args:              cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		plaintext, _ := cmd.Flags().GetBool("plaintext")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.InMemory() {
			return fmt.Errorf("nothing to back up from the in-memory store")
		}
		box, err := crypt.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return err
		}
		st, err := openStore(cfg, box)
		if err != nil {
			return err
		}
		defer st.Close()

		var w io.Writer = cmd.OutOrStdout()
		if file != "" && file != "-" {
			f, err := os.OpenFile(file, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		sealWith := box
		if plaintext {
			sealWith = nil
		}
		if err := envsync.ExportJSONL(cmd.Context(), st, sealWith, w); err != nil {
			return err
		}
		if file != "" && file != "-" {
			fmt.Fprintln(cmd.ErrOrStderr(), ui.OK("Wrote backup to "+ui.Highlight.Sprint(file)))
		}
		return nil
	},
}

var keygenCmd = &cobra.Command{
	Use:               "keygen",
	Short:             "Generate a value for ENVTREE_ENCRYPTION_KEY",
	GroupID:           "system",
	PersistentPreRunE: localCommand,
	Args:              cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypt.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

func init() {
	backupCmd.Flags().String("file", "", "output file (default stdout)")
	backupCmd.Flags().Bool("plaintext", false, "write values unsealed even when a key is configured")
}
