package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
)

var (
	serveProfile  string
	serveInterval time.Duration
)

// serveCmd 常驻运行，按固定间隔生成简报
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "常驻运行并定时生成简报",
	Long:  `启动后立即生成一次简报，之后按 schedule.interval 定时运行，直到收到中断信号。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		interval := a.cfg.Schedule.Interval
		if serveInterval > 0 {
			interval = serveInterval
		}
		if interval <= 0 {
			interval = 24 * time.Hour
		}
		profile := a.cfg.Schedule.Profile
		if serveProfile != "" {
			profile = serveProfile
		}

		monitor := logger.NewMemStatsMonitor(5 * time.Minute)
		monitor.Start()
		defer monitor.Stop()

		logger.Info("定时简报已启动", "interval", interval, "profile", profile)
		runOnce(ctx, a, profile)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runOnce(ctx, a, profile)
			case <-ctx.Done():
				logger.Info("定时简报已停止")
				return nil
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveProfile, "profile", "p", "", "运行模式名称，默认使用 schedule.profile")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 0, "运行间隔，默认使用 schedule.interval")
}
