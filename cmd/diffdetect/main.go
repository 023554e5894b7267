package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"golang.org/x/exp/slog"
)

const envVarPrefix = "DIFFDETECT"

var (
	rootfs       = flag.NewFlagSet("root", flag.ExitOnError)
	logLevelFlag = rootfs.String("loglevel", "INFO", "log level (DEBUG|INFO|WARN|ERROR|OFF)")
)

func main() {
	ctx := context.Background()

	servecmd := &ffcli.Command{
		Name:       "serve",
		ShortUsage: "diffdetect <flags> serve <serve flags>",
		ShortHelp:  "start watching resources and serving requests",
		LongHelp: `The serve subcommand is periodically fetching all enabled resources into snapshots
and serving the JSON API and the diff pages.`,
		FlagSet: servefs,
		Exec:    newServeFunc(),
		Options: []ff.Option{ff.WithEnvVarPrefix(envVarPrefix)},
	}

	fetchcmd := &ffcli.Command{
		Name:       "fetch",
		ShortUsage: "diffdetect <flags> fetch <fetch flags> <resource id>...",
		ShortHelp:  "fetch resources once and store snapshots",
		FlagSet:    fetchfs,
		Exec:       newFetchFunc(),
		Options:    []ff.Option{ff.WithEnvVarPrefix(envVarPrefix)},
	}

	snapshotscmd := &ffcli.Command{
		Name:       "snapshots",
		ShortUsage: "diffdetect <flags> snapshots <snapshots flags> <resource id>",
		ShortHelp:  "list the snapshots of a resource, newest first",
		FlagSet:    snapshotsfs,
		Exec:       newSnapshotsFunc(os.Stdout),
		Options:    []ff.Option{ff.WithEnvVarPrefix(envVarPrefix)},
	}

	diffcmd := &ffcli.Command{
		Name:       "diff",
		ShortUsage: "diffdetect <flags> diff <diff flags> <resource id>",
		ShortHelp:  "compare two snapshots of a resource",
		LongHelp: `The diff subcommand is printing the HTML rendering of a diff. Without -before and -after
the previous snapshot is compared to the newest one.`,
		FlagSet: difffs,
		Exec:    newDiffFunc(os.Stdout),
		Options: []ff.Option{ff.WithEnvVarPrefix(envVarPrefix)},
	}

	rootcmd := ffcli.Command{
		Name:        "diffdetect",
		ShortUsage:  "diffdetect <flags> cmd <cmd_flags>",
		ShortHelp:   "diffdetect is a tool for tracking changes of web resources and feeds",
		FlagSet:     rootfs,
		Subcommands: []*ffcli.Command{servecmd, fetchcmd, snapshotscmd, diffcmd},
		Options:     []ff.Option{ff.WithEnvVarPrefix(envVarPrefix)},
	}

	if err := rootcmd.ParseAndRun(ctx, os.Args[1:]); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	os.Exit(0)
}

func createLogger(w io.Writer, levelStr string) (*slog.Logger, error) {
	var lvl slog.Level

	switch levelStr {
	case slog.LevelDebug.String():
		lvl = slog.LevelDebug
	case slog.LevelInfo.String():
		lvl = slog.LevelInfo
	case slog.LevelWarn.String():
		lvl = slog.LevelWarn
	case slog.LevelError.String():
		lvl = slog.LevelError
	case "OFF":
		lvl = slog.Level(99)
	default:
		return nil, fmt.Errorf("log level %s not supported", levelStr)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
