package main

import (
	"encoding/json"
	"fmt"

	"edu-rag-go/internal/app"
	"edu-rag-go/internal/config"
	"edu-rag-go/internal/processing"
	"edu-rag-go/internal/repository"
	"edu-rag-go/internal/service"
	"edu-rag-go/pkg/database"
	"edu-rag-go/pkg/token"

	"github.com/spf13/cobra"
)

var (
	tokenUserID   uint
	tokenUsername string
	tokenRole     string
	rebuildWhich  string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "为指定用户签发访问 token",
	RunE: func(cmd *cobra.Command, args []string) error {
		m := token.NewJWTManager(config.Conf.JWT.Secret, config.Conf.JWT.AccessTokenExpireHours)
		tok, err := m.GenerateToken(tokenUserID, tokenUsername, tokenRole)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <unitId>",
	Short: "查看单元的处理状态",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unitID, err := parseUnitID(args[0])
		if err != nil {
			return err
		}
		database.InitMySQL(config.Conf.Database.MySQL.DSN)
		machine := processing.NewMachine(repository.NewProcessingStateRepository(database.DB))
		st, err := machine.Get(cmd.Context(), unitID)
		if err != nil {
			return err
		}
		return printJSON(cmd, st)
	},
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <unitId>",
	Short: "把 uploaded 或 failed 的单元重新加入处理队列",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unitID, err := parseUnitID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			st, err := a.Ingest.ProcessUnit(cmd.Context(), cliIdentity, unitID)
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		})
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild-index",
	Short: "从数据库重新生成向量索引",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			counts, err := a.Indexes.Rebuild(cmd.Context(), rebuildWhich)
			if err != nil {
				return err
			}
			return printJSON(cmd, counts)
		})
	},
}

func init() {
	tokenCmd.Flags().UintVar(&tokenUserID, "user-id", 0, "用户 id")
	tokenCmd.Flags().StringVar(&tokenUsername, "username", "", "用户名")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "USER", "角色：USER 或 ADMIN")
	_ = tokenCmd.MarkFlagRequired("user-id")

	rebuildCmd.Flags().StringVar(&rebuildWhich, "which", service.IndexAll, "passages、summaries 或 all")

	rootCmd.AddCommand(tokenCmd, statusCmd, reprocessCmd, rebuildCmd)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
