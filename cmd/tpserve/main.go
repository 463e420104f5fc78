// Command tpserve serves a results database written by tpcluster.
//
// The HTTP listener carries the JSON API (/api/runs, /api/clusters,
// /api/matches), the cluster map page (/clusters/map?run_id=...) and the
// debug index with the SQL console and backups (/debug/). The gRPC listener
// carries the cluster service.
//
// Usage:
//
//	tpserve -db tpc_results.db -listen :8080 -grpc-listen :50051
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/api"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/rpcserver"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/storage/sqlite"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/version"
)

var (
	dbPath      = flag.String("db", "tpc_results.db", "Results database")
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", ":50051", "gRPC listen address (empty disables gRPC)")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

type options struct {
	dbPath     string
	listen     string
	grpcListen string
	// ready, when set, is called with the bound addresses once both
	// listeners are up.
	ready func(httpAddr, grpcAddr string)
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("tpserve %s\n", version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := serve(ctx, options{dbPath: *dbPath, listen: *listen, grpcListen: *grpcListen})
	if err != nil {
		log.Fatalf("tpserve: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// serve runs both listeners until ctx is cancelled.
func serve(ctx context.Context, opts options) error {
	store, err := sqlite.Open(opts.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	mux := api.NewServer(store).ServeMux()
	if err := store.AttachAdminRoutes(mux); err != nil {
		return err
	}

	lis, err := net.Listen("tcp", opts.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", opts.listen, err)
	}

	var grpcSrv *rpcserver.Server
	grpcAddr := ""
	if opts.grpcListen != "" {
		grpcSrv = rpcserver.NewServer(store, opts.grpcListen)
		if err := grpcSrv.Start(); err != nil {
			lis.Close()
			return err
		}
		defer grpcSrv.Stop()
		grpcAddr = grpcSrv.Addr()
	}

	server := &http.Server{
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	errc := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP server listening on %s", lis.Addr())
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	if opts.ready != nil {
		opts.ready(lis.Addr().String(), grpcAddr)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	wg.Wait()
	return serveErr
}
