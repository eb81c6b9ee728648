package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wolfitem/ai-briefing/internal/infrastructure/config"
)

// configCmd 输出当前生效的配置
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "显示当前生效的配置（密钥已隐藏）",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(viper.GetViper()); err != nil {
			return err
		}
		out, err := config.Dump(viper.GetViper())
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
