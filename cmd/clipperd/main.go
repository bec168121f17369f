// Command clipperd is the core serving daemon: it owns the metrics
// registry, the configuration client, the query processor, both
// frontends, and the application registrar for one process lifetime.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/clipper-ml/clipper/internal/appconfig"
	"github.com/clipper-ml/clipper/internal/httpapi"
	"github.com/clipper-ml/clipper/internal/logging"
	"github.com/clipper-ml/clipper/internal/metrics"
	"github.com/clipper-ml/clipper/internal/policy"
	"github.com/clipper-ml/clipper/internal/query"
	"github.com/clipper-ml/clipper/internal/registrar"
	"github.com/clipper-ml/clipper/internal/worker"
	"github.com/clipper-ml/clipper/internal/zmqfrontend"
)

const logComponent = "clipperd"

var rootCmd = &cobra.Command{
	Use:   "clipperd",
	Short: "Online model-serving core: HTTP and ZMQ frontends over a shared query processor",
	RunE:  runServe,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("listen-addr", "0.0.0.0", "address both frontends bind on")
	flags.Int("http-port", 8080, "HTTP frontend port")
	flags.Int("zmq-recv-port", 4455, "ZMQ receive (router) port")
	flags.Int("zmq-send-port", 4456, "ZMQ send (router) port")
	flags.String("config-store-addr", "127.0.0.1", "configuration store host")
	flags.Int("config-store-port", 6379, "configuration store port")
	flags.Int("http-threads", 0, "HTTP thread count; accepted and bound to the environment, but not applied to the HTTP server")

	viper.SetEnvPrefix("CLIPPER")
	viper.AutomaticEnv()
	for _, name := range []string{
		"listen-addr", "http-port", "zmq-recv-port", "zmq-send-port",
		"config-store-addr", "config-store-port", "http-threads",
	} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.Infof(logComponent, "fatal: %v", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Infof(logComponent, "shutdown signal received")
		cancel()
	}()

	listenAddr := viper.GetString("listen-addr")
	httpAddr := net.JoinHostPort(listenAddr, fmt.Sprintf("%d", viper.GetInt("http-port")))
	zmqRecvAddr := fmt.Sprintf("tcp://%s:%d", listenAddr, viper.GetInt("zmq-recv-port"))
	zmqSendAddr := fmt.Sprintf("tcp://%s:%d", listenAddr, viper.GetInt("zmq-send-port"))
	configStoreAddr := net.JoinHostPort(viper.GetString("config-store-addr"), fmt.Sprintf("%d", viper.GetInt("config-store-port")))

	// The OTel SDK meter backs the registry's Observable instruments;
	// it has no configured exporter here (no periodic reader is
	// wired), a ManualReader simply lets the provider be constructed
	// without pulling in an external collector dependency nothing
	// else in the process needs.
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	defer func() { _ = meterProvider.Shutdown(context.Background()) }()
	registry := metrics.New(meterProvider.Meter("clipperd"))

	logging.Infof(logComponent, "connecting to configuration store at %s", configStoreAddr)
	configClient, err := appconfig.Connect(ctx, configStoreAddr)
	if err != nil {
		return fmt.Errorf("configuration store connect failed: %w", err)
	}
	defer configClient.Close()

	policies := policy.NewRegistry(policy.DefaultOutputPolicy{})
	dispatcher := &worker.FakeDispatcher{Delay: time.Millisecond}
	processor, err := query.New(registry, policies, dispatcher)
	if err != nil {
		return fmt.Errorf("failed to construct query processor: %w", err)
	}

	httpServer := httpapi.NewServer(httpAddr, registry, processor)
	zmqFrontend, err := zmqfrontend.New(zmqRecvAddr, zmqSendAddr, registry)
	if err != nil {
		return fmt.Errorf("failed to construct zmq frontend: %w", err)
	}

	reg := registrar.New(configClient, processor, httpServer, zmqFrontend)

	errCh := make(chan error, 3)
	go func() { errCh <- httpServer.Start(ctx) }()

	if err := zmqFrontend.Start(); err != nil {
		cancel()
		return fmt.Errorf("zmq bind failed: %w", err)
	}
	go func() {
		<-ctx.Done()
		zmqFrontend.Stop()
	}()

	go func() { errCh <- reg.Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			cancel()
			return err
		}
	}

	logging.Infof(logComponent, "clean shutdown")
	return nil
}
