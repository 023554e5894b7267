package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"gitlab.com/henri.philipps/diffdetect/service"
	"golang.org/x/exp/slog"
)

var (
	fetchfs      = flag.NewFlagSet("fetch", flag.ExitOnError)
	fetchStorage = addStorageFlags(fetchfs)
	fetchFetch   = addFetchFlags(fetchfs)

	snapshotsfs      = flag.NewFlagSet("snapshots", flag.ExitOnError)
	snapshotsStorage = addStorageFlags(snapshotsfs)

	difffs      = flag.NewFlagSet("diff", flag.ExitOnError)
	diffStorage = addStorageFlags(difffs)
	beforeFlag  = difffs.Int64("before", 0, "id of the before snapshot")
	afterFlag   = difffs.Int64("after", 0, "id of the after snapshot")
	jsonFlag    = difffs.Bool("json", false, "print the structured diff as json instead of html")
)

func parseIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, errors.New("resource id missing")
	}

	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid resource id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newFetchFunc() func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		logger, err := createLogger(os.Stderr, *logLevelFlag)
		if err != nil {
			return err
		}

		db, closeDB, err := fetchStorage.open(ctx, logger)
		if err != nil {
			return err
		}
		defer closeDB()

		archive := service.NewArchive(db, db, fetchFetch.archiveOpts(logger)...)

		var failed int
		for _, id := range ids {
			snap, err := archive.FetchAndStore(ctx, id)
			if err != nil {
				failed++
				logger.Error("fetch failed", "error", err, slog.Int64("resource_id", id))
				continue
			}
			fmt.Printf("resource %d: snapshot %d (%d bytes)\n", id, snap.ID, len(snap.Content))
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d fetches failed", failed, len(ids))
		}
		return nil
	}
}

func newSnapshotsFunc(out io.Writer) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		logger, err := createLogger(os.Stderr, *logLevelFlag)
		if err != nil {
			return err
		}

		db, closeDB, err := snapshotsStorage.open(ctx, logger)
		if err != nil {
			return err
		}
		defer closeDB()

		return printSnapshots(ctx, out, service.NewArchive(db, db, service.WithLogger(logger)), ids[0])
	}
}

func printSnapshots(ctx context.Context, out io.Writer, archive *service.Archive, resourceID int64) error {
	summaries, err := archive.ListSnapshots(ctx, resourceID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tUSER\tSIZE\tCHECKED")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\n", s.ID, s.CreateDate.Format(time.RFC3339), s.CreateUser, s.Size, s.Checked)
	}
	return tw.Flush()
}

func newDiffFunc(out io.Writer) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		logger, err := createLogger(os.Stderr, *logLevelFlag)
		if err != nil {
			return err
		}

		db, closeDB, err := diffStorage.open(ctx, logger)
		if err != nil {
			return err
		}
		defer closeDB()

		archive := service.NewArchive(db, db, service.WithLogger(logger))
		return printDiff(ctx, out, archive, ids[0], *beforeFlag, *afterFlag, *jsonFlag)
	}
}

func printDiff(ctx context.Context, out io.Writer, archive *service.Archive, resourceID, before, after int64, asJSON bool) error {
	if before == 0 && after == 0 {
		var err error
		if before, after, err = archive.DefaultSelection(ctx, resourceID); err != nil {
			return err
		}
	}

	res, err := archive.RenderDiff(ctx, resourceID, before, after)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	_, err = fmt.Fprintln(out, res.HTML)
	return err
}
