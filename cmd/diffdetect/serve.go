package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"gitlab.com/henri.philipps/diffdetect/config"
	"gitlab.com/henri.philipps/diffdetect/fetch"
	httptransport "gitlab.com/henri.philipps/diffdetect/http"
	"gitlab.com/henri.philipps/diffdetect/service"
	"gitlab.com/henri.philipps/diffdetect/watcher"
	"golang.org/x/exp/slog"
)

var (
	servefs           = flag.NewFlagSet("serve", flag.ExitOnError)
	addrFlag          = servefs.String("addr", ":8080", "address the server is listening on")
	intervalFlag      = servefs.Duration("interval", time.Minute, "interval between watcher runs, a run is canceled after this time")
	defaultPeriodFlag = servefs.Duration("period", time.Hour, "polling period of resources without interval")
	threadsFlag       = servefs.Int("threads", 4, "number of concurrent fetches")
	batchSizeFlag     = servefs.Int("batch", 1, "number of resources handed to a fetch thread at once")
	gracePeriodFlag   = servefs.Duration("grace", 10*time.Second, "shutdown grace period")
	seedFlag          = servefs.String("seed", "", "yaml file with intervals and resources to create on startup")
	serveStorage      = addStorageFlags(servefs)
	serveFetch        = addFetchFlags(servefs)
)

type fetchFlags struct {
	timeout      *time.Duration
	maxRedirects *int
	maxBodySize  *int64
	userAgent    *string
	createUser   *string
}

func addFetchFlags(fs *flag.FlagSet) fetchFlags {
	return fetchFlags{
		timeout:      fs.Duration("timeout", fetch.DefaultTimeout, "timeout of a single fetch, including a cookie replay"),
		maxBodySize:  fs.Int64("max-body-size", 10<<20, "maximum size of a fetched body in bytes, larger bodies fail the fetch (0 for no limit)"),
		maxRedirects: fs.Int("max-redirects", fetch.DefaultMaxRedirects, "maximum number of redirects to follow"),
		userAgent:    fs.String("user-agent", fetch.DefaultUserAgent, "user agent sent with requests"),
		createUser:   fs.String("create-user", service.DefaultCreateUser, "creator recorded in new snapshots"),
	}
}

func (f fetchFlags) archiveOpts(logger *slog.Logger) []service.Opt {
	fetcher := fetch.NewFetcher(
		fetch.WithTimeout(*f.timeout),
		fetch.WithMaxRedirects(*f.maxRedirects),
		fetch.WithMaxBodySize(*f.maxBodySize),
		fetch.WithUserAgent(*f.userAgent),
		fetch.WithLogger(logger),
	)

	return []service.Opt{
		service.WithFetcher(fetcher),
		service.WithCreateUser(*f.createUser),
		service.WithLogger(logger),
	}
}

// newServeFunc creates the func which is executed by servecmd.
func newServeFunc() func(context.Context, []string) error {

	return func(serveCtx context.Context, args []string) error {
		ctx, cancel := context.WithCancel(serveCtx)
		defer cancel()

		logger, err := createLogger(os.Stdout, *logLevelFlag)
		if err != nil {
			return err
		}

		db, closeDB, err := serveStorage.open(ctx, logger)
		if err != nil {
			return err
		}
		defer closeDB()

		resources := service.NewResources(db, logger)
		archive := service.NewArchive(db, db, serveFetch.archiveOpts(logger)...)

		if *seedFlag != "" {
			seed, err := config.Load(*seedFlag)
			if err != nil {
				return err
			}
			if _, err := seed.Apply(ctx, resources, logger); err != nil {
				return fmt.Errorf("applying seed: %w", err)
			}
		}

		w := watcher.NewWatcher(archive, resources,
			watcher.WithInterval(*intervalFlag),
			watcher.WithDefaultPeriod(*defaultPeriodFlag),
			watcher.WithThreads(*threadsFlag),
			watcher.WithBatchSize(*batchSizeFlag),
			watcher.WithLogger(logger),
		)

		// manual fetches go through the watcher to be serialized with scheduled ones
		router := httptransport.MakeAPIHandler(resources, archive, w, logger)

		// the run group will take care of running and shutting down all background components
		g := run.Group{}

		// add handler for signals to run group, for shutting down all components on SIGINT and SIGTERM
		g.Add(func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-c:
				return fmt.Errorf("caught signal %v", sig)
			case <-ctx.Done():
				return ctx.Err()
			}
		}, func(error) {
			cancel()
		})

		g.Add(func() error { return w.Start(ctx) }, func(error) { cancel() })

		// ReadHeaderTimeout is set to prevent Slowloris attacks.
		server := http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}

		logger.Info("start listening...", slog.String("listen_addr", *addrFlag))
		ln, err := net.Listen("tcp", *addrFlag)
		if err != nil {
			logger.Error("failed to start server, exiting", "error", err)
			return err
		}

		g.Add(func() error { return server.Serve(ln) }, func(error) {
			graceCtx, graceCancel := context.WithTimeout(context.Background(), *gracePeriodFlag)
			defer graceCancel()
			if err := server.Shutdown(graceCtx); err != nil {
				logger.Error("graceful shutdown error", "error", err)
			}
		})

		err = g.Run()
		logger.Info("exiting", slog.String("reason", err.Error()))
		return err
	}
}
