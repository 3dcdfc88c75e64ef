// Command jobboard は求人掲載と応募管理のサーバー・ワーカー・運用コマンドを提供する。
//
//	jobboard [serve]                       APIサーバーを起動する
//	jobboard worker                        期限切れ処理を定期実行する
//	jobboard migrate                       マイグレーションを適用する
//	jobboard healthcheck                   /health を確認する
//	jobboard expire-jobs [-dry-run]        期限切れ求人を非公開にする
//	jobboard approve-recruiter <account>   リクルーターを承認する
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/jobboard/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "jobboard: %v\n", err)
		os.Exit(1)
	}
}
