package main

import (
	"context"
	"net/http"
	"time"

	"github.com/hamba/cmd"
	mlog "github.com/nrwiersma/manager/pkg/log"
	"gopkg.in/urfave/cli.v2"
)

func runServer(c *cli.Context) error {
	ctx, err := cmd.NewContext(c)
	if err != nil {
		return err
	}

	store, err := newStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	app, err := newApplication(ctx, store)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:     c.String(flagHTTPAddr),
		Handler:  app.Handler(),
		ErrorLog: mlog.NewBridge(ctx.Logger(), mlog.Debug, "http: "),
	}

	srvErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErrCh <- err
		}
	}()

	ctx.Logger().Info("server: admin api listening", "addr", srv.Addr)

	select {
	case <-cmd.WaitForSignals():
	case err := <-app.Errs():
		ctx.Logger().Error("server: fatal application error", "error", err)
	case err := <-srvErrCh:
		ctx.Logger().Error("server: http server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		ctx.Logger().Error("server: error draining http server", "error", err)
	}

	return nil
}
