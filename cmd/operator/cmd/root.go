package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/Intreecom/i2g-operator/internal/controller"
	"github.com/Intreecom/i2g-operator/internal/leader"
)

//nolint:gochecknoglobals // set by SetVersion from main
var (
	version = "development"
	gitsha  = "development"
)

func SetVersion(ver, sha string) {
	version = ver
	gitsha = sha
}

//nolint:gochecknoglobals // cobra command pattern
var rootCmd = &cobra.Command{
	Use:   "i2g-operator",
	Short: "Kubernetes operator translating Ingress resources to Gateway API routes",
	Long: `A Kubernetes operator that watches Ingress resources and generates
Gateway API HTTPRoute (and optionally TCPRoute) objects from them, driven
by annotations on the Ingress. Generated routes attach to a pre-existing
Gateway and are kept in sync via server-side apply.`,
	RunE:          runOperator,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	rootCmd.Flags().String("default-gateway-name", "", "Gateway generated routes attach to unless overridden per Ingress")
	rootCmd.Flags().String("default-gateway-namespace", "default", "Namespace of the default Gateway")
	rootCmd.Flags().Bool("link-to-ingress", true, "Add owner references from the source Ingress to generated routes")
	rootCmd.Flags().Bool("experimental", false, "Enable TCPRoute generation for non-HTTP Ingress rules")
	rootCmd.Flags().Bool("skip-by-default", false, "Skip Ingresses that carry no translate annotation")
	rootCmd.Flags().String("metrics-addr", ":8080", "Address for metrics endpoint")
	rootCmd.Flags().String("health-addr", ":8081", "Address for health probe endpoint")

	// Leader election flags
	rootCmd.Flags().String("lease-name", "i2g-operator-leader", "Name of the leader election lease")
	rootCmd.Flags().String("lease-namespace", "default", "Namespace for the leader election lease")
	rootCmd.Flags().Duration("lease-ttl", leader.DefaultTTL, "Lease duration after which a silent leader is considered gone")
	rootCmd.Flags().Duration("lease-poll-interval", leader.DefaultPollInterval, "Interval between lease acquire/renew attempts")

	_ = viper.BindPFlags(rootCmd.Flags())
	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	viper.SetEnvPrefix("I2G")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("default-gateway-namespace", "default")
	viper.SetDefault("link-to-ingress", true)
	viper.SetDefault("experimental", false)
	viper.SetDefault("skip-by-default", false)
	viper.SetDefault("metrics-addr", ":8080")
	viper.SetDefault("health-addr", ":8081")
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-format", "json")
	viper.SetDefault("lease-name", "i2g-operator-leader")
	viper.SetDefault("lease-namespace", "default")
	viper.SetDefault("lease-ttl", leader.DefaultTTL)
	viper.SetDefault("lease-poll-interval", leader.DefaultPollInterval)
}

func Execute() error {
	return errors.Wrap(rootCmd.Execute(), "command execution failed")
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo

	switch viper.GetString("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if viper.GetString("log-format") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

//nolint:noinlineerr // inline error handling is fine here
func runOperator(_ *cobra.Command, _ []string) error {
	logger := setupLogger()
	slog.SetDefault(logger)

	ctrl.SetLogger(logr.FromSlogHandler(logger.Handler()))

	logger.Info("starting i2g-operator",
		"version", version,
		"gitsha", gitsha,
	)

	gatewayName := viper.GetString("default-gateway-name")
	if gatewayName == "" {
		return errors.New("default-gateway-name is required (use --default-gateway-name or I2G_DEFAULT_GATEWAY_NAME env var)")
	}

	ttl := viper.GetDuration("lease-ttl")
	pollInterval := viper.GetDuration("lease-poll-interval")

	if pollInterval >= ttl {
		return errors.New("lease-poll-interval must be shorter than lease-ttl")
	}

	cfg := controller.Config{
		DefaultGatewayName:      gatewayName,
		DefaultGatewayNamespace: viper.GetString("default-gateway-namespace"),
		LinkToIngress:           viper.GetBool("link-to-ingress"),
		ExperimentalTCP:         viper.GetBool("experimental"),
		SkipByDefault:           viper.GetBool("skip-by-default"),

		LeaseName:         viper.GetString("lease-name"),
		LeaseNamespace:    viper.GetString("lease-namespace"),
		LeaseTTL:          ttl,
		LeasePollInterval: pollInterval,

		MetricsAddr: viper.GetString("metrics-addr"),
		HealthAddr:  viper.GetString("health-addr"),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := controller.Run(ctx, &cfg); err != nil {
		return errors.Wrap(err, "failed to run operator")
	}

	return nil
}
