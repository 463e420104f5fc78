package main

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/monitoring"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/rpcserver"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/storage/sqlite"
)

func init() {
	monitoring.SetLogger(nil)
}

func seedDB(t *testing.T) (string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := sqlite.Open(path)
	require.NoError(t, err)
	run, err := s.CreateRun(context.Background(), "in.root", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	return path, run.RunID
}

// start runs serve in the background and returns the bound addresses.
func start(t *testing.T, opts options) (string, string, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	type addrs struct{ http, grpc string }
	ready := make(chan addrs, 1)
	opts.ready = func(h, g string) { ready <- addrs{h, g} }

	done := make(chan error, 1)
	go func() { done <- serve(ctx, opts) }()

	select {
	case a := <-ready:
		t.Cleanup(func() {
			cancel()
			<-done
		})
		return a.http, a.grpc, done
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	return "", "", nil
}

func TestServe_HTTPAndGRPC(t *testing.T) {
	db, runID := seedDB(t)
	httpAddr, grpcAddr, _ := start(t, options{dbPath: db, listen: "127.0.0.1:0", grpcListen: "127.0.0.1:0"})

	resp, err := http.Get("http://" + httpAddr + "/api/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []sqlite.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].RunID)

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	out, err := rpcserver.NewClusterServiceClient(conn).ListRuns(context.Background(), &structpb.Struct{})
	require.NoError(t, err)
	assert.Len(t, out.GetFields()["runs"].GetListValue().GetValues(), 1)
}

func TestServe_WithoutGRPC(t *testing.T) {
	db, _ := seedDB(t)
	httpAddr, grpcAddr, _ := start(t, options{dbPath: db, listen: "127.0.0.1:0"})
	assert.Empty(t, grpcAddr)

	resp, err := http.Get("http://" + httpAddr + "/clusters/map")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServe_ShutdownOnCancel(t *testing.T) {
	db, _ := seedDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, options{dbPath: db, listen: "127.0.0.1:0", ready: func(string, string) { close(started) }})
	}()
	<-started
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServe_BadListenAddress(t *testing.T) {
	db, _ := seedDB(t)
	err := serve(context.Background(), options{dbPath: db, listen: "256.0.0.1:bad"})
	assert.Error(t, err)
}
