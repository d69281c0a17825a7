// Command ocvsmd is the on-board node-management control-plane daemon
// (spec.md §1/§2), grounded on original_source/src/daemon/main.cpp's
// entrypoint: load config, daemonize, bind the IPC sockets named in
// config, and run until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ocvsmd-go/ocvsmd/internal/config"
	"github.com/ocvsmd-go/ocvsmd/internal/daemonize"
	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/address"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/route"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
	"github.com/ocvsmd-go/ocvsmd/internal/service"
	"github.com/ocvsmd-go/ocvsmd/pkg/cyphal"
	"github.com/ocvsmd-go/ocvsmd/pkg/fileserver"
	"github.com/ocvsmd-go/ocvsmd/pkg/monitor"
	"github.com/ocvsmd-go/ocvsmd/pkg/pnp"
)

// protocolVersion is the IPC handshake version this daemon speaks,
// spec.md §4.4.
var protocolVersion = route.ProtocolVersion{Major: 1, Minor: 0}

// registrar is satisfied by every internal/service host type.
type registrar interface {
	RegisterWith(r *router.ServerRouter) error
}

func main() {
	configPath := flag.String("config", "/etc/ocvsmd/ocvsmd.toml", "path to the daemon's TOML config file")
	pidFile := flag.String("pid-file", "/var/run/ocvsmd.pid", "path to the daemon's PID file")
	daemon := flag.Bool("daemonize", false, "detach into the background (man 7 daemon style)")
	flag.Parse()

	if *daemon {
		if err := daemonize.Daemonize(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	if err := run(*configPath, *pidFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, pidFile string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("ocvsmd: %w", err)
	}

	pidf, err := daemonize.WritePIDFile(pidFile)
	if err != nil {
		return fmt.Errorf("ocvsmd: %w", err)
	}
	defer pidf.Close()

	log := ipclog.New(ipclog.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("ocvsmd: open log file: %w", err)
		}
		defer f.Close()
		log = ipclog.NewWriter(ipclog.ParseLevel(cfg.Logging.Level), f)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go signalLoop(ctx, cancel, log)

	exec := executor.New()
	go exec.Run(ctx)

	presentation := cyphal.Unimplemented{}

	roots := fileserver.NewRoots()
	for _, r := range cfg.FileServer.Roots {
		roots.Push(r, true)
	}
	cfg.WatchForChanges(func(c *config.Config) {
		log.Infof("config file changed, reloading file-server roots")
		roots.Reset(c.FileServer.Roots)
	})

	monTable := monitor.NewInMemoryTable()
	allocator := pnp.NewInMemoryAllocator()

	services := []registrar{
		service.NewExecCmdService(exec, presentation, log),
		service.NewRegisterService(exec, presentation, log),
		service.NewFileServerService(roots, log),
		service.NewMonitorService(exec, monTable, log),
		service.NewPnpService(exec, allocator, log),
	}

	var routers []*router.ServerRouter
	for _, conn := range cfg.IPC.Connections {
		ep, err := address.Parse(conn, 0)
		if err != nil {
			return fmt.Errorf("ocvsmd: parsing ipc.connections entry %q: %w", conn, err)
		}

		r, err := router.ListenServerRouter(exec, log, ep.Network(), ep.String(), protocolVersion)
		if err != nil {
			return fmt.Errorf("ocvsmd: listening on %q: %w", conn, err)
		}
		for _, svc := range services {
			if err := svc.RegisterWith(r); err != nil {
				return fmt.Errorf("ocvsmd: registering service on %q: %w", conn, err)
			}
		}
		routers = append(routers, r)
		log.Infof("listening on %s", conn)
	}

	log.Infof("ocvsmd daemon started")
	<-ctx.Done()
	log.Infof("ocvsmd daemon terminating")

	for _, r := range routers {
		r.Close()
	}
	return nil
}

func signalLoop(ctx context.Context, cancel context.CancelFunc, log *ipclog.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sig)

	select {
	case s := <-sig:
		log.Infof("received signal %s, shutting down", s)
		cancel()
	case <-ctx.Done():
	}
}
