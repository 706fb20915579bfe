package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/trisync/trisync/internal/artwork"
	"github.com/trisync/trisync/internal/config"
	"github.com/trisync/trisync/internal/liberr"
	"github.com/trisync/trisync/internal/logging"
	"github.com/trisync/trisync/internal/ops"
	"github.com/trisync/trisync/internal/prompt"
	"github.com/trisync/trisync/internal/store"
)

var version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `trisync - three-way music library reconciler

Usage: trisync [-config path] <command> [args]

Commands:
  add <libpath>                                add tracks under libpath from the library into the database, then copy to device
  remove <libpath>                             remove tracks under libpath from database, device, and library (trashed, not deleted)
  move <src-libpath> <dest-libpath>             move a track or directory within library, device, and database
  replace <new-files-abs-path> <dest-libpath>   substitute tracks under dest-libpath by stem-name match against files in new-files-abs-path
  check [-ignore-dap-content] <libpath>         run the check/resolve engine against libpath
  aw-get <track-libpath> [output-base-path]     extract a track's embedded artwork into files
  playlist [-all]                              export save_dap playlists as M3U files

Options:
  -config string
        Path to config file (default: OS-specific config directory)
  -version
        Print version and exit
`)
	}

	cfgPath := flag.String("config", "", "")
	showVersion := flag.Bool("version", false, "")
	flag.Parse()

	if *showVersion {
		fmt.Println("trisync", version)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, resolvedPath, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, logFile, err := logging.Setup()
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer logFile.Close()
	logger.Info("starting trisync", slog.String("config", resolvedPath), slog.String("command", args[0]))

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	env := &ops.Env{
		Cfg:     cfg,
		DB:      db,
		Artwork: artwork.NewStore(),
		Prompt:  prompt.NewStdin(os.Stdin, os.Stdout),
		Logger:  logger,
	}

	if err := dispatch(ctx, env, args[0], args[1:]); err != nil {
		logger.Error("command failed", slog.String("command", args[0]), slog.Any("err", err))
		fmt.Fprintf(os.Stderr, "trisync: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, env *ops.Env, command string, args []string) error {
	switch command {
	case "add":
		if len(args) != 1 {
			return usageError("add requires exactly one <libpath> argument")
		}
		return ops.Add(ctx, env, args[0])

	case "remove":
		if len(args) != 1 {
			return usageError("remove requires exactly one <libpath> argument")
		}
		return ops.Remove(ctx, env, args[0])

	case "move":
		if len(args) != 2 {
			return usageError("move requires <src-libpath> <dest-libpath>")
		}
		return ops.Move(ctx, env, args[0], args[1])

	case "replace":
		if len(args) != 2 {
			return usageError("replace requires <new-files-abs-path> <dest-libpath>")
		}
		return ops.Replace(ctx, env, args[0], args[1])

	case "check":
		fs := flag.NewFlagSet("check", flag.ContinueOnError)
		ignoreDapContent := fs.Bool("ignore-dap-content", false, "")
		if env.Cfg.Reconcile.IgnoreDapContent {
			*ignoreDapContent = true
		}
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return usageError("check requires exactly one <libpath> argument")
		}
		return ops.Check(ctx, env, fs.Arg(0), *ignoreDapContent)

	case "aw-get":
		if len(args) < 1 || len(args) > 2 {
			return usageError("aw-get requires <track-libpath> [output-base-path]")
		}
		output := ""
		if len(args) == 2 {
			output = args[1]
		}
		return ops.AWGet(ctx, env, args[0], output)

	case "playlist":
		fs := flag.NewFlagSet("playlist", flag.ContinueOnError)
		all := fs.Bool("all", false, "")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return ops.Playlist(ctx, env, *all)

	default:
		return usageError(fmt.Sprintf("unknown command %q", command))
	}
}

func usageError(msg string) error {
	return &liberr.InvalidCommandArgument{Msg: msg}
}
