//go:build unix

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/go-eventfd"
	"github.com/joeycumines/go-eventfd/server"
	"github.com/joeycumines/logiface"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const (
	// shutdownTimeout bounds how long serve waits for in-flight connections.
	shutdownTimeout = 10 * time.Second

	// maxCount caps descriptors allocated by a single create.
	maxCount = 1 << 16
)

// app holds state shared by all commands, resolved before any command runs.
type app struct {
	v      *viper.Viper
	logOut io.Writer
	cfg    *config
	logger *logiface.Logger[logiface.Event]
}

func newRootCommand(logOut io.Writer) *cobra.Command {
	a := &app{v: newViper(), logOut: logOut}

	cmd := &cobra.Command{
		Use:   `eventfd`,
		Short: `Allocate eventfd descriptors, and serve TCP with eventfd-signalled shutdown`,
		Long: `eventfd exposes the Linux eventfd(2) primitive.

The create command allocates counters, initialised to 0, with no flags. The
serve, send, and demo commands run (and talk to) a TCP server that blocks in a
single poll on its listener and an eventfd, which is set to shut it down.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := readConfigFile(a.v); err != nil {
				return err
			}
			cfg, err := loadConfig(a.v)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = newLogger(a.logOut, cfg.LogLevel)
			eventfd.SetLogger(a.logger)
			return nil
		},
	}

	cmd.PersistentFlags().String(keyConfig, ``, `Path to configuration file`)
	cmd.PersistentFlags().String(keyLogLevel, defaultLogLevel, `Log level (trace, debug, info, notice, warning, err, crit, alert, emerg, disabled)`)

	cmd.AddCommand(
		a.newCreateCommand(),
		a.newServeCommand(),
		a.newSendCommand(),
		a.newDemoCommand(),
	)
	cmd.CompletionOptions.DisableDefaultCmd = true

	return cmd
}

func (a *app) newCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   `create`,
		Short: `Allocate eventfd descriptors, printing each`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count := a.v.GetInt(keyCount)
			if count < 1 {
				return fmt.Errorf("invalid %s: must be at least 1", keyCount)
			}
			if count > maxCount {
				return fmt.Errorf("invalid %s: must be at most %d", keyCount, maxCount)
			}

			fds := make([]int, 0, count)
			defer func() {
				for _, fd := range fds {
					_ = syscall.Close(fd)
				}
			}()

			for i := 0; i < count; i++ {
				fd, err := eventfd.CreateContext(cmd.Context())
				if err != nil {
					return fmt.Errorf("create: %w", err)
				}
				fds = append(fds, fd)
				fmt.Fprintln(cmd.OutOrStdout(), fd)
			}

			return nil
		},
	}
	cmd.Flags().Int(keyCount, 1, `Number of descriptors to allocate`)
	return cmd
}

func (a *app) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   `serve`,
		Short: `Run the upper-casing TCP server until interrupted`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := a.newServer()
			if err != nil {
				return err
			}
			defer srv.Close()

			fmt.Fprintln(cmd.OutOrStdout(), srv.Addr())

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return serve(srv) })
			g.Go(func() error {
				<-gctx.Done()
				return a.stopServer(srv)
			})
			return g.Wait()
		},
	}
	a.addServerFlags(cmd, defaultServeAddr)
	return cmd
}

func (a *app) newSendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   `send MESSAGE...`,
		Short: `Send each message to the server, printing the replies`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, msg := range args {
				reply, err := a.exchange(cmd.Context(), msg)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(reply))
			}
			return nil
		},
	}
	cmd.Flags().String(keyAddr, defaultServeAddr, `Server address`)
	cmd.Flags().Duration(keyReadTimeout, defaultReadTimeout, `Timeout for each exchange`)
	return cmd
}

func (a *app) newDemoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   `demo`,
		Short: `Start a server, exchange a few messages with it, then shut it down`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := a.newServer()
			if err != nil {
				return err
			}
			defer srv.Close()

			var g errgroup.Group
			g.Go(func() error { return serve(srv) })
			g.Go(func() error {
				defer func() { _ = a.stopServer(srv) }()
				addr := srv.Addr().String()
				for i := 1; i <= 3; i++ {
					reply, err := a.exchangeAddr(cmd.Context(), addr, fmt.Sprintf("Hello World %d", i))
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Received: %s\n", reply)
				}
				return nil
			})
			return g.Wait()
		},
	}
	a.addServerFlags(cmd, defaultDemoAddr)
	return cmd
}

func (a *app) addServerFlags(cmd *cobra.Command, addr string) {
	cmd.Flags().String(keyAddr, addr, `Server bind address`)
	cmd.Flags().Duration(keyReadTimeout, defaultReadTimeout, `Per-connection I/O deadline`)
	cmd.Flags().Int(keyAcceptRate, 0, `Maximum connections per second, per remote IP (0 is unlimited)`)
	cmd.Flags().Bool(keyPipe, false, `Use a self-pipe rather than an eventfd for shutdown`)
}

func (a *app) newServer() (*server.Server, error) {
	opts := []server.Option{
		server.WithLogger(a.logger),
		server.WithReadTimeout(a.cfg.ReadTimeout),
		server.WithEventOptions(eventfd.WithPipe(a.cfg.Pipe)),
	}
	if a.cfg.AcceptRate > 0 {
		opts = append(opts, server.WithAcceptRates(map[time.Duration]int{time.Second: a.cfg.AcceptRate}))
	}
	return server.New(a.cfg.Addr, &server.UpperCaseHandler{Logger: a.logger}, opts...)
}

// stopServer shuts srv down, then closes it, which also prevents a Serve
// that hasn't started yet from running.
func (a *app) stopServer(srv *server.Server) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	if err2 := srv.Close(); err == nil {
		err = err2
	}
	a.logger.Info().
		Dur(`took`, time.Since(start)).
		Log(`server was shut down`)
	return err
}

func (a *app) exchange(ctx context.Context, msg string) ([]byte, error) {
	return a.exchangeAddr(ctx, a.cfg.Addr, msg)
}

func (a *app) exchangeAddr(ctx context.Context, addr, msg string) ([]byte, error) {
	if a.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.ReadTimeout)
		defer cancel()
	}
	reply, err := server.Exchange(ctx, addr, []byte(msg))
	if err != nil {
		return nil, fmt.Errorf("send to %s: %w", addr, err)
	}
	return reply, nil
}

// serve runs srv, treating a server closed before it started as success.
func serve(srv *server.Server) error {
	if err := srv.Serve(); err != nil && !errors.Is(err, server.ErrServerClosed) {
		return err
	}
	return nil
}
