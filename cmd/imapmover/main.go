package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pepperpark/imapmover/internal/config"
	"github.com/pepperpark/imapmover/internal/imaputil"
	"github.com/pepperpark/imapmover/internal/mboxsrc"
	"github.com/pepperpark/imapmover/internal/syncer"
)

var (
	// Set via -ldflags at build time.
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "imapmover",
		Short: "imapmover - replicate IMAP folders and messages between servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			// default to help
			return cmd.Help()
		},
	}

	var showVersion bool
	rootCmd.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Print version and exit")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Printf("imapmover %s", version)
			if commit != "" {
				fmt.Printf(" (%s)", commit)
			}
			if date != "" {
				fmt.Printf(" built %s", date)
			}
			fmt.Println()
			os.Exit(0)
		}
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy missing folders and messages from the source to the destination",
		Args:  cobra.NoArgs,
		RunE:  runSync,
	}
	addSyncFlags(syncCmd)
	rootCmd.AddCommand(syncCmd)

	ctx, stop := interruptContext(context.Background())
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// interruptContext is canceled by the first interrupt. Signal handling is
// then released so a second interrupt terminates the process.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

// sync command options
type syncOptions struct {
	// IMAP source
	srcHost     string
	srcPort     int
	srcNoSSL    bool
	srcUser     string
	srcPassword string
	// MBOX source
	mboxPath   string
	mboxFolder string

	// Destination IMAP
	dstHost     string
	dstPort     int
	dstNoSSL    bool
	dstUser     string
	dstPassword string

	rules         []syncer.Rule
	dryRun        bool
	startTLS      bool
	insecure      bool
	sepSubstitute string
	chunkSize     int64
	configPath    string
	plain         bool
	verbose       bool
}

func addSyncFlags(cmd *cobra.Command) {
	o := &syncOptions{}
	cmd.SilenceUsage = true
	cmd.SilenceErrors = false
	cmd.Flags().StringVar(&o.srcHost, "src-host", "localhost", "Source IMAP host")
	cmd.Flags().IntVar(&o.srcPort, "src-port", 0, "Source IMAP port (default 993, or 143 with --src-no-ssl)")
	cmd.Flags().BoolVar(&o.srcNoSSL, "src-no-ssl", false, "Connect to the source without implicit TLS")
	cmd.Flags().StringVar(&o.srcUser, "src-user", "", "Source IMAP username")
	cmd.Flags().StringVar(&o.srcPassword, "src-password", "", "Source IMAP password (prompted when omitted)")
	// MBOX
	cmd.Flags().StringVar(&o.mboxPath, "mbox", "", "Read from a local MBOX file instead of the source IMAP server")
	cmd.Flags().StringVar(&o.mboxFolder, "mbox-folder", mboxsrc.DefaultFolder, "Folder name the MBOX file is exposed as")

	cmd.Flags().StringVar(&o.dstHost, "dest-host", "localhost", "Destination IMAP host")
	cmd.Flags().IntVar(&o.dstPort, "dest-port", 0, "Destination IMAP port (default 993, or 143 with --dest-no-ssl)")
	cmd.Flags().BoolVar(&o.dstNoSSL, "dest-no-ssl", false, "Connect to the destination without implicit TLS")
	cmd.Flags().StringVar(&o.dstUser, "dest-user", "", "Destination IMAP username (defaults to the source user)")
	cmd.Flags().StringVar(&o.dstPassword, "dest-password", "", "Destination IMAP password (prompted when omitted)")

	addRuleFlags(cmd.Flags(), &o.rules)
	cmd.Flags().BoolVarP(&o.dryRun, "dry-run", "D", false, "Plan the sync without creating folders or appending messages")
	cmd.Flags().BoolVar(&o.startTLS, "starttls", false, "Upgrade plain connections with STARTTLS")
	cmd.Flags().BoolVar(&o.insecure, "insecure", false, "Skip TLS verification")
	cmd.Flags().StringVar(&o.sepSubstitute, "sep-substitute", syncer.DefaultSeparatorSubstitute, "Replacement for destination separators found in source folder names")
	cmd.Flags().Int64Var(&o.chunkSize, "chunk-size", syncer.DefaultChunkBytes, "Maximum bytes per bulk message fetch")
	cmd.Flags().StringVar(&o.configPath, "config", "", "YAML configuration file; flags override its values")
	cmd.Flags().BoolVar(&o.plain, "plain", false, "Use plain progress bars instead of the interactive display")
	cmd.Flags().BoolVar(&o.verbose, "verbose", false, "Enable detailed per-folder logs")

	// Bind into context
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		cmd.SetContext(context.WithValue(cmd.Context(), ctxKey{}, o))
		return nil
	}
}

type ctxKey struct{}

func runSync(cmd *cobra.Command, args []string) error {
	o := cmd.Context().Value(ctxKey{}).(*syncOptions)

	cfg, err := o.config(cmd)
	if err != nil {
		return err
	}
	if o.mboxPath == "" && cfg.Source.User == "" {
		return fmt.Errorf("missing required flag: --src-user")
	}
	if cfg.Destination.User == "" {
		return fmt.Errorf("missing required flag: --dest-user (or --src-user)")
	}
	if o.mboxPath == "" && cfg.Source.Password == "" {
		if cfg.Source.Password, err = promptPassword("Source password: "); err != nil {
			return fmt.Errorf("read source password: %w", err)
		}
	}
	if cfg.Destination.Password == "" {
		if cfg.Destination.Password, err = promptPassword("Destination password: "); err != nil {
			return fmt.Errorf("read destination password: %w", err)
		}
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: o.insecure}
	src := imaputil.Connector(cfg.Source.ServerInfo(), tlsConfig)
	if o.mboxPath != "" {
		src = mboxsrc.Connector(o.mboxPath, o.mboxFolder)
	}
	dst := imaputil.Connector(cfg.Destination.ServerInfo(), tlsConfig)

	opts := syncer.Options{
		DryRun:              cfg.DryRun,
		Rules:               cfg.Rules(),
		SeparatorSubstitute: cfg.SeparatorSubstitute,
		MaxChunkBytes:       cfg.ChunkSize,
		Verbose:             o.verbose,
	}
	run := func(ctx context.Context, progress syncer.ProgressFactory) (*syncer.Summary, error) {
		opts.Progress = progress
		return syncer.Sync(ctx, src, dst, opts)
	}

	if o.verbose {
		fmt.Printf("Starting sync: dry-run=%v, %d filter rule(s), chunk size %s\n",
			opts.DryRun, len(opts.Rules), humanReadableSize(opts.MaxChunkBytes))
	}

	var sum *syncer.Summary
	if o.plain || o.verbose || !term.IsTerminal(int(os.Stdout.Fd())) {
		sum, err = run(cmd.Context(), plainFactory(os.Stderr))
	} else {
		sum, err = runTUI(cmd.Context(), run)
	}
	if errors.Is(err, context.Canceled) {
		fmt.Println("Folder sync interrupted by user.")
		return nil
	}
	if err != nil {
		return err
	}
	printSummary(os.Stdout, sum, opts.DryRun)
	return nil
}

// config merges the optional configuration file with the flags set on the
// command line.
func (o *syncOptions) config(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}
	changed := cmd.Flags().Changed
	if o.configPath == "" || changed("src-host") {
		cfg.Source.Host = o.srcHost
	}
	if changed("src-port") {
		cfg.Source.Port = o.srcPort
	}
	if changed("src-no-ssl") {
		cfg.Source.NoSSL = o.srcNoSSL
	}
	if changed("src-user") {
		cfg.Source.User = o.srcUser
	}
	if changed("src-password") {
		cfg.Source.Password = o.srcPassword
	}
	if o.configPath == "" || changed("dest-host") {
		cfg.Destination.Host = o.dstHost
	}
	if changed("dest-port") {
		cfg.Destination.Port = o.dstPort
	}
	if changed("dest-no-ssl") {
		cfg.Destination.NoSSL = o.dstNoSSL
	}
	if changed("dest-user") {
		cfg.Destination.User = o.dstUser
	}
	if changed("dest-password") {
		cfg.Destination.Password = o.dstPassword
	}
	if changed("starttls") {
		cfg.Source.StartTLS = o.startTLS
		cfg.Destination.StartTLS = o.startTLS
	}
	if cfg.Destination.User == "" {
		cfg.Destination.User = cfg.Source.User
	}
	if len(o.rules) > 0 {
		cfg.Filters = cfg.Filters[:0]
		for _, r := range o.rules {
			if r.Direction == syncer.Include {
				cfg.Filters = append(cfg.Filters, config.FilterRule{Include: r.Pattern})
			} else {
				cfg.Filters = append(cfg.Filters, config.FilterRule{Exclude: r.Pattern})
			}
		}
	}
	if changed("dry-run") {
		cfg.DryRun = o.dryRun
	}
	if o.configPath == "" || changed("sep-substitute") {
		cfg.SeparatorSubstitute = o.sepSubstitute
	}
	if o.configPath == "" || changed("chunk-size") {
		cfg.ChunkSize = o.chunkSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return cfg, nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func printSummary(w io.Writer, sum *syncer.Summary, dryRun bool) {
	if dryRun {
		fmt.Fprintf(w, "Dry run: %d folder(s), %d to create, %d message(s) (%s) to copy\n",
			sum.Folders, sum.FoldersCreated, sum.PlannedMessages, humanReadableSize(sum.PlannedBytes))
		return
	}
	fmt.Fprintf(w, "Synced %d folder(s): %d created, %d message(s) (%s) copied\n",
		sum.Folders, sum.FoldersCreated, sum.Appended, humanReadableSize(sum.PlannedBytes))
}
