package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd 显示最近的运行记录
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "显示最近的运行记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if a.repo == nil {
			return fmt.Errorf("数据库未启用，没有运行记录")
		}
		runs, err := a.repo.RecentRuns(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("暂无运行记录")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "开始时间\t模式\t数据源\t条目\t降级\t交付成功/失败\t失败的数据源")
		for _, run := range runs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%t\t%d/%d\t%s\n",
				run.StartedAt.Local().Format("2006-01-02 15:04"),
				run.Profile,
				run.Sources,
				run.Items,
				run.Degraded,
				run.Delivered,
				run.DeliveryFailed,
				strings.Join(run.FailedSources, ","))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "显示的记录数")
}
