package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/algorave/algorave-client/internal/client"
	"github.com/algorave/algorave-client/internal/config"
	"github.com/algorave/algorave-client/internal/draftstore"
	"github.com/algorave/algorave-client/internal/sessionscope"
	"github.com/algorave/algorave-client/internal/settings"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
	// BuildTime is set via -ldflags at build time.
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "init":
		initCmd(os.Args[2:])
	case "login":
		loginCmd(os.Args[2:])
	case "logout":
		logoutCmd(os.Args[2:])
	case "run":
		runCmd(os.Args[2:])
	case "drafts":
		draftsCmd(os.Args[2:])
	case "strudels":
		strudelsCmd(os.Args[2:])
	case "version":
		fmt.Printf("algorave-client %s (%s) %s\n", Version, Commit, BuildTime)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `algorave-client

Usage:
  algorave-client init [flags]
  algorave-client login [flags]
  algorave-client logout [flags]
  algorave-client run [flags]
  algorave-client drafts <list|show|delete> [flags]
  algorave-client strudels <fork> [flags]
  algorave-client version

Commands:
  init      Write a default config file.
  login     Store and verify an Algorave API token.
  logout    Remove the stored API token.
  run       Connect to a live session and run until interrupted.
  drafts    Inspect or delete locally persisted drafts.
  strudels  Fork a shared strudel.
  version   Print build information.

`)
}

func initCmd(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	apiURL := fs.String("api-url", "", "Algorave API base URL")
	wsURL := fs.String("ws-url", "", "Algorave session channel base URL")
	_ = fs.Parse(args)

	cfg := config.Default()
	if *apiURL != "" {
		cfg.APIBaseURL = *apiURL
	}
	if *wsURL != "" {
		cfg.WSBaseURL = *wsURL
	}
	if err := config.Save(filepath.Clean(*cfgPath), cfg); err != nil {
		fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written: %s\n", filepath.Clean(*cfgPath))
}

func logoutCmd(args []string) {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	_ = fs.Parse(args)

	cfg, err := config.Load(filepath.Clean(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	secrets := settings.NewSecretsStore(cfg.SecretsPath(*cfgPath))
	if err := secrets.ClearAuthToken(); err != nil {
		fmt.Fprintf(os.Stderr, "logout failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Logged out.")
}

func newClient(cfgPath string) (*client.Client, *config.Config) {
	cfg, err := config.Load(filepath.Clean(cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v (run 'algorave-client init' first)\n", err)
		os.Exit(1)
	}
	log, err := client.NewLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	secrets := settings.NewSecretsStore(cfg.SecretsPath(cfgPath))
	c, err := client.New(client.Options{
		Config:     cfg,
		ConfigPath: cfgPath,
		Secrets:    secrets,
		Logger:     log,
		Version:    Version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init client: %v\n", err)
		os.Exit(1)
	}
	return c, cfg
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	sessionID := fs.String("session", "", "Session id to join (empty: start a new session)")
	inviteToken := fs.String("invite", "", "Invite token for joining as a viewer")
	displayName := fs.String("name", "", "Display name for anonymous participation")
	strudelID := fs.String("strudel", "", "Strudel id to open after connecting")
	_ = fs.Parse(args)

	c, _ := newClient(*cfgPath)
	defer func() { _ = c.Close() }()

	if *inviteToken != "" {
		c.Scope().SetViewerSession(sessionscope.ViewerSession{
			SessionID:   *sessionID,
			InviteToken: *inviteToken,
			DisplayName: *displayName,
		})
	} else if *sessionID != "" {
		c.Scope().SetSessionID(*sessionID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Connected. Session: %s\n", c.Session().SessionID())

	if *strudelID != "" {
		if err := c.LoadStrudel(ctx, *strudelID); err != nil {
			fmt.Fprintf(os.Stderr, "load strudel failed: %v\n", err)
			os.Exit(1)
		}
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	fmt.Println("Shutting down.")
}

func draftsCmd(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: algorave-client drafts <list|show|delete> [flags]")
		os.Exit(2)
	}
	sub := args[0]
	fs := flag.NewFlagSet("drafts "+sub, flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	id := fs.String("id", "", "Draft id")
	_ = fs.Parse(args[1:])

	cfg, err := config.Load(filepath.Clean(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	drafts, err := draftstore.Open(cfg.DraftsDBPath(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open draft store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = drafts.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch sub {
	case "list":
		all, err := drafts.ListDrafts(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list drafts: %v\n", err)
			os.Exit(1)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tORIGIN\tUPDATED\tTITLE")
		for _, d := range all {
			updated := time.UnixMilli(d.UpdatedAtUnixMs).Format(time.RFC3339)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Origin, updated, d.Title)
		}
		_ = w.Flush()
	case "show":
		if *id == "" {
			fmt.Fprintln(os.Stderr, "missing -id")
			os.Exit(2)
		}
		d, err := drafts.GetDraft(ctx, *id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "get draft: %v\n", err)
			os.Exit(1)
		}
		if d == nil {
			fmt.Fprintf(os.Stderr, "draft %s not found\n", *id)
			os.Exit(1)
		}
		fmt.Println(d.Code)
	case "delete":
		if *id == "" {
			fmt.Fprintln(os.Stderr, "missing -id")
			os.Exit(2)
		}
		if err := drafts.DeleteDraft(ctx, *id); err != nil {
			fmt.Fprintf(os.Stderr, "delete draft: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %s\n", *id)
	default:
		fmt.Fprintf(os.Stderr, "unknown drafts subcommand %q\n", sub)
		os.Exit(2)
	}
}

func strudelsCmd(args []string) {
	if len(args) < 1 || args[0] != "fork" {
		fmt.Fprintln(os.Stderr, "usage: algorave-client strudels fork -id <strudel-id> [flags]")
		os.Exit(2)
	}
	fs := flag.NewFlagSet("strudels fork", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	id := fs.String("id", "", "Strudel id to fork")
	_ = fs.Parse(args[1:])

	if *id == "" {
		fmt.Fprintln(os.Stderr, "missing -id")
		os.Exit(2)
	}

	c, _ := newClient(*cfgPath)
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.ForkStrudel(ctx, *id); err != nil {
		fmt.Fprintf(os.Stderr, "fork failed: %v\n", err)
		os.Exit(1)
	}
	snap := c.Editor().Snapshot()
	if snap.CurrentStrudelID != "" {
		fmt.Printf("Forked to strudel %s\n", snap.CurrentStrudelID)
	} else {
		fmt.Printf("Forked to local draft %s\n", snap.CurrentDraftID)
	}
}
