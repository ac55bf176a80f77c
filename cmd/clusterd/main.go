// Command clusterd wires package cluster and package diag into a thin
// binary: discover the local cluster, start every chip, and serve the
// diag status API until interrupted. Grounded on
// cmd/driver/hasher-host/main.go's flag parsing plus
// http.Server+signal.Notify graceful-shutdown sequence.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"umd/arch"
	"umd/cluster"
	"umd/coord"
	"umd/diag"
	"umd/topology"
)

var (
	port         = flag.Int("port", 8090, "diag HTTP API port")
	lockDir      = flag.String("lock-dir", "", "interprocess mutex directory (empty = cluster.DefaultOptions)")
	sdescPath    = flag.String("sdesc", "", "optional SoC descriptor YAML overriding arch defaults")
	hostMemChans = flag.Int("host-mem-channels", 0, "hugepage channels per MMIO device (0 disables sysmem)")
)

func main() {
	flag.Parse()

	opts := cluster.DefaultOptions()
	if *lockDir != "" {
		opts.LockDir = *lockDir
	}
	if *sdescPath != "" {
		opts.SdescPath = *sdescPath
	}
	if *hostMemChans != 0 {
		opts.NumHostMemChannelsPerMMIODevice = *hostMemChans
	}
	opts = cluster.ApplyEnvOverrides(opts)

	socFor := func(a arch.Arch) (*coord.SocDescriptor, error) {
		if opts.SdescPath != "" {
			data, err := os.ReadFile(opts.SdescPath)
			if err != nil {
				return nil, fmt.Errorf("read sdesc %s: %w", opts.SdescPath, err)
			}
			return coord.UnmarshalSocDescriptor(data)
		}
		return coord.NewSocDescriptor(a, coord.BoardN300, coord.HarvestingMasks{})
	}
	src := topology.NewLiveProber("/dev/tenstorrent/*", socFor)

	cl, err := cluster.New(opts, src)
	if err != nil {
		log.Fatalf("cluster construction failed: %v", err)
	}

	log.Printf("discovered %d chips", len(cl.Chips()))
	if err := cl.StartDevice(); err != nil {
		log.Fatalf("start_device failed: %v", err)
	}

	srv := diag.NewServer(cl)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: srv.Handler(),
	}

	go func() {
		log.Printf("diag API listening on :%d", *port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("diag API error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down clusterd...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("diag API shutdown error: %v", err)
	}

	if err := cl.CloseDevice(); err != nil {
		log.Printf("close_device error: %v", err)
	}
	if err := cl.Close(); err != nil {
		log.Printf("cluster close error: %v", err)
	}

	log.Println("clusterd stopped")
}
