package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dimiro1/banner"
	"github.com/mattn/go-colorable"
	"github.com/open-feature/flagx/core/pkg/engine"
	"github.com/open-feature/flagx/core/pkg/logger"
	"github.com/open-feature/flagx/pkg/provider"
	"github.com/open-feature/flagx/pkg/runtime"
	"github.com/open-feature/flagx/pkg/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	portFlagName             = "port"
	uriFlagName              = "uri"
	logLevelFlagName         = "log-level"
	logFormatFlagName        = "log-format"
	cacheTTLFlagName         = "cache-ttl"
	cacheSizeFlagName        = "cache-size"
	historyLimitFlagName     = "history-limit"
	scheduleIntervalFlagName = "schedule-interval"
	alertIntervalFlagName    = "alert-interval"
	metricLookbackFlagName   = "metric-lookback"
	reportScheduleFlagName   = "report-schedule"
)

func init() {
	registerStartFlags(startCmd.Flags())
	_ = viper.BindPFlags(startCmd.Flags())
	rootCmd.AddCommand(startCmd)
}

func registerStartFlags(flags *pflag.FlagSet) {
	defaults := engine.DefaultConfig()

	flags.Int32P(portFlagName, "p", 8080, "Port to listen on")
	flags.StringP(uriFlagName, "f", "", "Flag definitions file (json or yaml); built-in flags are used when empty")
	flags.String(logLevelFlagName, "info", "Log level: debug, info, warn or error")
	flags.String(logFormatFlagName, "json", "Log format: json or console")
	flags.Duration(cacheTTLFlagName, defaults.CacheTTL, "Evaluation cache entry lifetime")
	flags.Int(cacheSizeFlagName, defaults.CacheSize, "Maximum number of cached evaluations")
	flags.Int(historyLimitFlagName, defaults.HistoryLimit, "Maximum number of evaluation records kept")
	flags.Duration(scheduleIntervalFlagName, defaults.ScheduleInterval, "Interval of the schedule window scan")
	flags.Duration(alertIntervalFlagName, defaults.AlertInterval, "Interval of the alert threshold check")
	flags.Duration(metricLookbackFlagName, defaults.MetricLookback, "Window of samples used for error rate and response time alerts")
	flags.String(reportScheduleFlagName, runtime.DefaultReportSchedule, "Cron schedule of the analytics report, empty to disable")
}

const bannerText = `{{ .AnsiColor.BrightGreen }}
  __ _
 / _| | __ _  __ ___  __
| |_| |/ _' |/ _' \ \/ /
|  _| | (_| | (_| |>  <
|_| |_|\__,_|\__, /_/\_\
             |___/
{{ .AnsiColor.Default }}`

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start flagx",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		zapLogger, err := logger.NewZapLogger(viper.GetString(logLevelFlagName), viper.GetString(logFormatFlagName))
		if err != nil {
			return err
		}
		defer func() { _ = zapLogger.Sync() }()
		log := logger.NewLogger(zapLogger)

		if viper.GetString(logFormatFlagName) == "console" {
			banner.InitString(colorable.NewColorableStdout(), true, true, bannerText)
		}

		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		opts := []engine.Option{engine.WithLogger(log), engine.WithRegistry(registry)}
		uri := viper.GetString(uriFlagName)
		if uri != "" {
			opts = append(opts, engine.WithDefaultFlags())
		}

		eng, err := engine.New(engine.Config{
			CacheTTL:         viper.GetDuration(cacheTTLFlagName),
			CacheSize:        viper.GetInt(cacheSizeFlagName),
			HistoryLimit:     viper.GetInt(historyLimitFlagName),
			SeriesLimit:      engine.DefaultConfig().SeriesLimit,
			ScheduleInterval: viper.GetDuration(scheduleIntervalFlagName),
			AlertInterval:    viper.GetDuration(alertIntervalFlagName),
			MetricLookback:   viper.GetDuration(metricLookbackFlagName),
			AnalysisWindow:   engine.DefaultConfig().AnalysisWindow,
		}, opts...)
		if err != nil {
			return fmt.Errorf("unable to create engine: %w", err)
		}

		rt := &runtime.Runtime{
			Engine: eng,
			Service: &service.HTTPService{
				HTTPServiceConfiguration: &service.HTTPServiceConfiguration{
					Port: viper.GetInt32(portFlagName),
				},
				Logger: log,
			},
			ReportSchedule: viper.GetString(reportScheduleFlagName),
			Logger:         log,
		}
		if uri != "" {
			rt.Provider = provider.NewFilePathProvider(uri, log)
		}

		// Serve ------------------------------------------------------------------
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.Info("starting flagx", zap.String("uri", uri), zap.Int32("port", viper.GetInt32(portFlagName)))
		if err := rt.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("flagx stopped with error", zap.Error(err))
			return err
		}
		return nil
	},
}
