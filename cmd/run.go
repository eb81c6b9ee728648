package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/config"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
)

var (
	profileName string
	outputFile  string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "生成并交付一次每日简报",
	Long: `按配置并发抓取全部数据源，去重合并为分区摘要，
使用Deepseek API压缩摘要后交付到配置的目标（邮件、Kindle、本地文件）。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		profile, err := config.Profile(a.cfg, profileName)
		if err != nil {
			return err
		}

		briefing, err := a.service.Run(ctx, profile)
		if briefing != nil && outputFile != "" {
			if writeErr := writeOutput(outputFile, briefing.Document); writeErr != nil {
				return writeErr
			}
			fmt.Printf("简报已保存到: %s\n", outputFile)
		}
		if err != nil {
			if errors.Is(err, model.ErrAllDeliveriesFailed) {
				logger.Error("简报交付失败", "error", err)
			}
			return fmt.Errorf("生成简报失败: %w", err)
		}

		fmt.Printf("简报生成完成: %d 条内容，%d 个数据源失败\n",
			briefing.Digest.ItemCount(), len(briefing.Digest.FailedSources))
		return nil
	},
}

// writeOutput 额外把简报写到指定路径
func writeOutput(path string, doc model.Document) error {
	// 确保输出目录存在
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建输出目录失败: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(doc.Body), 0644); err != nil {
		return fmt.Errorf("写入输出文件失败: %w", err)
	}
	return nil
}

// runOnce 供serve命令复用
func runOnce(ctx context.Context, a *app, name string) {
	profile, err := config.Profile(a.cfg, name)
	if err != nil {
		logger.Error("运行模式无效", "error", err)
		return
	}
	if _, err := a.service.Run(ctx, profile); err != nil {
		logger.Error("定时简报失败", "profile", profile.Name, "error", err)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	// 本地标志
	runCmd.Flags().StringVarP(&profileName, "profile", "p", "", "运行模式名称（例如 morning、weekend）")
	runCmd.Flags().StringVarP(&outputFile, "output", "f", "", "额外保存简报的文件路径（可选）")
}
