package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"docarc/internal/app"
	"docarc/internal/archive"
	"docarc/internal/config"
	"docarc/internal/encryption"
	"docarc/internal/tasks"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an ArchiveApp. The caller must defer
// app.Close(). operation identifies the CLI command being run.
func newApp(cmd *cobra.Command, operation string) (*app.ArchiveApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewArchiveApp(cmd.Context(), cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "docarc",
	Short: "Content-addressed document archive",
}

// config command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Archive Dir:   %s\n", cfg.ArchiveDir)
		fmt.Printf("Thumbnail Dir: %s\n", cfg.ThumbnailDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Source:        %s (%s)\n", cfg.Source.Name, cfg.Source.Type)
		fmt.Printf("Database:      %s\n", cfg.Database.Type)
		fmt.Printf("Blob Store:    %s\n", cfg.BlobStore.Type)
		return nil
	},
}

// ingest command

var (
	ingestTags   []string
	ingestSource string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <external-id>...",
	Short: "Download and catalog items from the configured source",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mappings, err := parseTagMappings(ingestTags)
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "Ingest")
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.Ingest(cmd.Context(), args, mappings, ingestSource)
		failed := 0
		for _, t := range list {
			fmt.Printf("%-12s %6.1f%%  %s", t.Status, t.Progress, t.Subject)
			if t.Message != "" {
				fmt.Printf("  (%s)", t.Message)
			}
			fmt.Println()
			if t.Status == tasks.StatusFailed {
				failed++
			}
		}
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d items failed", failed, len(list))
		}
		return nil
	},
}

// parseTagMappings parses --tag alias=group:name flags. The group is a tag
// group id in the local catalog.
func parseTagMappings(flags []string) (map[string]archive.TagMapping, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	mappings := make(map[string]archive.TagMapping, len(flags))
	for _, f := range flags {
		alias, rest, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid tag mapping %q (want alias=group:name)", f)
		}
		group, name, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("invalid tag mapping %q (want alias=group:name)", f)
		}
		groupID, err := strconv.ParseInt(group, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid group id in tag mapping %q", f)
		}
		mappings[alias] = archive.TagMapping{GroupID: groupID, Name: name}
	}
	return mappings, nil
}

// fix-hash command

var fixHashCmd = &cobra.Command{
	Use:   "fix-hash",
	Short: "Repair files whose name disagrees with their content",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "FixHash")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.FixHash()
		if err != nil {
			return err
		}
		fmt.Printf("Unchanged: %d\n", report.Unchanged)
		for _, r := range report.Renamed {
			fmt.Printf("Renamed:   %s -> %s\n", r.OldName, r.NewName)
		}
		for _, r := range report.Collisions {
			fmt.Printf("Collision: %s (content already archived as %s)\n", r.OldName, r.NewName)
		}
		for _, r := range report.Orphans {
			fmt.Printf("Orphan:    %s (no catalog entry, left untouched)\n", r.OldName)
		}
		for _, r := range report.Failures {
			fmt.Printf("Failed:    %s: %s\n", r.OldName, r.Error)
		}
		return nil
	},
}

// verify command

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every archived file against its name",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Verify")
		if err != nil {
			return err
		}
		defer a.Close()

		mismatched, checked, err := a.Verify()
		if err != nil {
			return err
		}
		fmt.Printf("Checked %d files, %d mismatched\n", checked, len(mismatched))
		for _, m := range mismatched {
			fmt.Printf("Mismatch: %s (content digests to %s)\n", m.OldName, m.NewName)
		}
		if len(mismatched) > 0 {
			return fmt.Errorf("%d files failed verification", len(mismatched))
		}
		return nil
	},
}

// clean command

var cleanYes bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove files no catalog entry references",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Clean")
		if err != nil {
			return err
		}
		defer a.Close()

		wandering, err := a.WanderingFiles()
		if err != nil {
			return err
		}
		if len(wandering) == 0 {
			fmt.Println("No wandering files")
			return nil
		}
		for _, name := range wandering {
			fmt.Println(name)
		}

		if !cleanYes {
			if !term.IsTerminal(int(syscall.Stdin)) {
				return fmt.Errorf("refusing to delete %d files without confirmation (use --yes)", len(wandering))
			}
			fmt.Printf("Delete these %d files? [y/N] ", len(wandering))
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading confirmation: %w", err)
			}
			if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
				fmt.Println("Aborted")
				return nil
			}
		}

		if err := a.RemoveWandering(wandering); err != nil {
			return err
		}
		fmt.Printf("Removed %d files\n", len(wandering))
		return nil
	},
}

// recover command

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Re-download cataloged files missing from disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Recover")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Recover(cmd.Context())
		if err != nil {
			return err
		}
		for _, name := range report.Recovered {
			fmt.Printf("Recovered: %s\n", name)
		}
		for _, name := range report.Unlinked {
			fmt.Printf("Unlinked:  %s (no source to fetch from)\n", name)
		}
		for _, f := range report.Failures {
			fmt.Printf("Failed:    %s: %s\n", f.OldName, f.Error)
		}
		return nil
	},
}

// pull command

var pullCmd = &cobra.Command{
	Use:   "pull <catalog.db>",
	Short: "Import documents from another catalog database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Pull")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Pull(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d documents, skipped %d already present\n", report.Imported, report.Skipped)
		for _, f := range report.Failures {
			fmt.Printf("Failed: document %s: %s\n", f.OldName, f.Error)
		}
		return nil
	},
}

// backup command

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload a catalog snapshot and missing archive files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Backup(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Snapshot:  %s\n", report.SnapshotName)
		fmt.Printf("Uploaded:  %d files\n", len(report.Uploaded))
		for _, name := range report.TooLarge {
			fmt.Printf("Too large: %s (skipped)\n", name)
		}
		for _, f := range report.Failures {
			fmt.Printf("Failed:    %s: %s\n", f.OldName, f.Error)
		}
		return nil
	},
}

var backupKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an age key pair for backup encryption",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}
		keyDir := filepath.Join(defaults["base_dir"], "keys")
		pubPath := filepath.Join(keyDir, "backup.pub")
		privPath := filepath.Join(keyDir, "backup.key")

		if !term.IsTerminal(int(syscall.Stdin)) {
			return fmt.Errorf("keygen requires an interactive terminal")
		}
		fmt.Print("Passphrase for private key: ")
		passphrase, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}

		if err := encryption.Setup(pubPath, privPath, string(passphrase)); err != nil {
			return err
		}
		fmt.Printf("Public key:  %s\n", pubPath)
		fmt.Printf("Private key: %s (passphrase protected)\n", privPath)
		fmt.Printf("Set backup.public_key_path = %q in the config to enable snapshot encryption\n", pubPath)
		return nil
	},
}

// thumbnails command

var thumbnailsCmd = &cobra.Command{
	Use:   "thumbnails",
	Short: "Generate thumbnails for documents that lack one",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Thumbnails")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Thumbnails()
		if err != nil {
			return err
		}
		fmt.Printf("Present: %d, generated: %d\n", report.Present, report.Generated)
		for _, f := range report.Failures {
			fmt.Printf("Failed: document %s: %s\n", f.OldName, f.Error)
		}
		return nil
	},
}

// replace command

var replaceCmd = &cobra.Command{
	Use:   "replace <file>",
	Short: "Swap a document's content for a corrected local file",
	Long: "The file's name (minus extension) must be the external id of a " +
		"cataloged document. The file is admitted under its content digest " +
		"and the catalog updated to point at it.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Replace")
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.Replace(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Document %d now stored as %s\n", doc.ID, doc.FilePath)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringArrayVar(&ingestTags, "tag", nil,
		"tag mapping for an unknown source alias, as alias=group:name")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "",
		"catalog source name to link items under (default from config)")
	cleanCmd.Flags().BoolVar(&cleanYes, "yes", false, "delete without confirmation")

	configCmd.AddCommand(configInitCmd, configListCmd)
	backupCmd.AddCommand(backupKeygenCmd)
	rootCmd.AddCommand(configCmd, ingestCmd, fixHashCmd, verifyCmd, cleanCmd,
		recoverCmd, pullCmd, backupCmd, thumbnailsCmd, replaceCmd)
}
