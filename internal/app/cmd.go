package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は定期ジョブ（求人・招待の期限切れ処理）を起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandExpireJobs は求人の期限切れ処理を1回だけ実行する。-dry-runで件数のみ表示する。
	CommandExpireJobs Command = "expire-jobs"
	// CommandApproveRecruiter は管理者としてリクルーターを承認する。
	CommandApproveRecruiter Command = "approve-recruiter"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandWorker, CommandServe, CommandMigrate, CommandHealthcheck,
		CommandExpireJobs, CommandApproveRecruiter:
		return Command(args[0])
	default:
		return CommandServe
	}
}
