package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version 变量将在编译时通过 -ldflags 注入
var Version string

// versionCmd 表示 version 命令
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示程序版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		version := Version
		if version == "" {
			version = "开发版本"
		}
		fmt.Printf("AI-Briefing 版本: %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
