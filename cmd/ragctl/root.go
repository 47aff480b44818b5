package main

import (
	"context"
	"strconv"

	"edu-rag-go/internal/app"
	"edu-rag-go/internal/config"
	"edu-rag-go/internal/model"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"

	"github.com/spf13/cobra"
)

var configPath string

// cliIdentity 是命令行操作使用的管理员身份。
var cliIdentity = model.Identity{Username: "ragctl", Role: "ADMIN"}

var rootCmd = &cobra.Command{
	Use:          "ragctl",
	Short:        "edu-rag 管理工具：签发 token、查看处理状态、重新处理单元、重建索引",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		config.Conf = *cfg
		log.Init("warn", "console", "")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "配置文件路径")
}

// withApp 组装完整应用后执行 fn，结束时释放资源。
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx, &config.Conf)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func parseUnitID(s string) (uint, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v == 0 {
		return 0, errs.Newf(errs.KindInvalidInput, "ragctl", "无效的单元 id %q", s)
	}
	return uint(v), nil
}
