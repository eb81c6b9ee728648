package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wolfitem/ai-briefing/internal/infrastructure/config"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ai-briefing",
	Short: "每日个人简报生成工具",
	Long: `AI-Briefing是一个基于Go语言的控制台程序，并发抓取新闻订阅、话题提醒、
天气预报和市场行情，去重合并后使用Deepseek API生成摘要，
最终通过邮件、Kindle或本地文件交付每日简报。`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// 程序退出前同步日志
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		logger.Sync()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// 全局标志
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认为 ./config.yaml)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// 使用指定的配置文件
		viper.SetConfigFile(cfgFile)
	} else {
		// 在当前目录中查找配置文件
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// 读取环境变量，例如 BRIEFING_SUMMARIZATION_API_KEY
	viper.SetEnvPrefix("briefing")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 读取配置文件
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("使用配置文件:", viper.ConfigFileUsed())
	} else {
		fmt.Printf("无法读取配置文件，使用默认配置: %v\n", err)
	}

	initLogger()
}

// initLogger 初始化日志系统
func initLogger() {
	logConfig, err := config.LoggerConfig(viper.GetViper())
	if err != nil {
		fmt.Printf("读取日志配置失败: %v\n", err)
		return
	}
	if err := logger.Init(logConfig); err != nil {
		fmt.Printf("初始化日志系统失败: %v\n", err)
	}
}

// signalContext 返回在收到SIGINT或SIGTERM时取消的上下文，正在进行的运行可以据此收尾
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	c := make(chan os.Signal, 1)
	// 监听 SIGINT (Ctrl+C) 和 SIGTERM 信号
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(c)
		select {
		case <-c:
			fmt.Println("\n接收到中断信号，正在优雅退出...")
			logger.Info("程序接收到中断信号，正在清理资源")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
