// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: Category* 定数のいずれか
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ。HTTPステータスへの対応はhandler層が決める。
const (
	CategoryUnauthorized = "unauthorized"
	CategoryNotFound     = "not_found"
	CategoryConflict     = "conflict"
	CategoryExpired      = "expired"
	CategoryValidation   = "validation"
	CategoryTransport    = "transport"
	CategorySystem       = "system"
)

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeInvalidStage         = "INVALID_STAGE"
	ErrCodeAlreadyApplied       = "ALREADY_APPLIED"
	ErrCodeNotEligible          = "NOT_ELIGIBLE"
	ErrCodeEmployerCannotApply  = "EMPLOYER_CANNOT_APPLY"
	ErrCodeJobClosed            = "JOB_CLOSED"
	ErrCodeRecruiterNotApproved = "RECRUITER_NOT_APPROVED"
	ErrCodeDuplicateName        = "DUPLICATE_NAME"
	ErrCodeStageInUse           = "STAGE_IN_USE"
	ErrCodeTeamExists           = "TEAM_EXISTS"
	ErrCodeAlreadyMember        = "ALREADY_TEAM_MEMBER"
	ErrCodeEmployerCannotJoin   = "EMPLOYER_CANNOT_JOIN_TEAM"
	ErrCodeInvitationNotPending = "INVITATION_NOT_PENDING"
	ErrCodeVerificationExpired  = "VERIFICATION_EXPIRED"
	ErrCodeVerificationMismatch = "VERIFICATION_MISMATCH"
	ErrCodeAlreadyVerified      = "ALREADY_VERIFIED"
	ErrCodeInvitationExpired    = "INVITATION_EXPIRED"
	ErrCodeInvalidPhone         = "INVALID_PHONE"
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeDeliveryFailed       = "DELIVERY_FAILED"
	ErrCodeTwoFactorUnavailable = "TWO_FACTOR_UNAVAILABLE"
)

// IsCategory はerrがAPIErrorであり、指定カテゴリに属するかを判定する。
func IsCategory(err error, category string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category == category
	}
	return false
}

// HasCode はerrがAPIErrorであり、指定コードを持つかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewUnauthorizedError は権限不足エラーを生成する。
// capabilityには不足している権限名を渡す。
func NewUnauthorizedError(capability Capability) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  fmt.Sprintf("この操作を行う権限がありません（必要な権限: %s）。", capability),
		Category: CategoryUnauthorized,
		Action:   "チームのオーナーまたは管理者に権限の付与を依頼してください。",
	}
}

// NewNotFoundError は対象リソースが存在しない、またはアクセス範囲外の場合のエラーを生成する。
// 範囲外のリソースも同じエラーを返し、存在を漏らさない。
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません。", resource),
		Category: CategoryNotFound,
		Action:   "IDを確認してください。",
	}
}

// NewInvalidStageError は移動先ステージが応募の雇用者スコープに属さない場合のエラーを生成する。
func NewInvalidStageError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStage,
		Message:  "指定されたステージはこの求人のパイプラインに存在しません。",
		Category: CategoryNotFound,
		Action:   "パイプラインのステージ一覧から選択してください。",
	}
}

// NewAlreadyAppliedError は同じ求人への重複応募エラーを生成する。
func NewAlreadyAppliedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyApplied,
		Message:  "この求人には既に応募しています。",
		Category: CategoryConflict,
		Action:   "応募状況は応募一覧から確認できます。",
	}
}

// NewNotEligibleError は本人確認が未完了で応募できない場合のエラーを生成する。
func NewNotEligibleError() *APIError {
	return &APIError{
		Code:     ErrCodeNotEligible,
		Message:  "応募するには電話番号またはメールアドレスの確認が必要です。",
		Category: CategoryUnauthorized,
		Action:   "アカウント設定から電話番号またはメールアドレスを確認してください。",
	}
}

// NewEmployerCannotApplyError は採用側アカウントが応募しようとした場合のエラーを生成する。
func NewEmployerCannotApplyError() *APIError {
	return &APIError{
		Code:     ErrCodeEmployerCannotApply,
		Message:  "採用担当者のアカウントでは求人に応募できません。",
		Category: CategoryUnauthorized,
		Action:   "求職者アカウントでログインしてください。",
	}
}

// NewJobClosedError は募集を停止している求人への応募エラーを生成する。
func NewJobClosedError() *APIError {
	return &APIError{
		Code:     ErrCodeJobClosed,
		Message:  "この求人は現在募集を停止しています。",
		Category: CategoryValidation,
		Action:   "他の求人を検索してください。",
	}
}

// NewRecruiterNotApprovedError は未承認のリクルーターが求人を投稿しようとした場合のエラーを生成する。
func NewRecruiterNotApprovedError() *APIError {
	return &APIError{
		Code:     ErrCodeRecruiterNotApproved,
		Message:  "リクルーターアカウントが管理者に承認されていません。",
		Category: CategoryUnauthorized,
		Action:   "承認されるまでお待ちください。",
	}
}

// NewDuplicateNameError はスコープ内で名前が重複している場合のエラーを生成する。
// resourceにはステージ、タグ、メールテンプレート等の種別を渡す。
func NewDuplicateNameError(resource, name string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateName,
		Message:  fmt.Sprintf("同じ名前の%sが既に存在します: %s", resource, name),
		Category: CategoryConflict,
		Action:   "別の名前を指定してください。",
	}
}

// NewStageInUseError は割り当て中の応募がある最後のステージを削除しようとした場合のエラーを生成する。
func NewStageInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeStageInUse,
		Message:  "応募が割り当てられている最後のステージは削除できません。",
		Category: CategoryConflict,
		Action:   "別のステージを作成してから削除してください。",
	}
}

// NewTeamExistsError は既にチームを所有しているアカウントがチームを作成しようとした場合のエラーを生成する。
func NewTeamExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeTeamExists,
		Message:  "既にチームを作成済みです。",
		Category: CategoryConflict,
		Action:   "既存のチームにメンバーを招待してください。",
	}
}

// NewAlreadyMemberError は既に他のチームに所属しているユーザーが招待を承諾しようとした場合のエラーを生成する。
func NewAlreadyMemberError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyMember,
		Message:  "既に別のチームに所属しています。",
		Category: CategoryConflict,
		Action:   "現在のチームから外れてから招待を承諾してください。",
	}
}

// NewEmployerCannotJoinError は雇用者アカウントが他のチームの招待を承諾しようとした場合のエラーを生成する。
// 雇用者は常に自分のパイプラインの所有者であり、他の雇用者のチームには所属できない。
func NewEmployerCannotJoinError() *APIError {
	return &APIError{
		Code:     ErrCodeEmployerCannotJoin,
		Message:  "雇用者アカウントは他のチームに参加できません。",
		Category: CategoryConflict,
		Action:   "求職者またはリクルーターのアカウントで招待を承諾してください。",
	}
}

// NewInvitationNotPendingError は処理済みの招待を再度処理しようとした場合のエラーを生成する。
func NewInvitationNotPendingError(status InvitationStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvitationNotPending,
		Message:  fmt.Sprintf("この招待は既に処理されています（状態: %s）。", status),
		Category: CategoryConflict,
		Action:   "新しい招待を依頼してください。",
	}
}

// NewInvitationExpiredError は有効期限切れの招待エラーを生成する。
func NewInvitationExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeInvitationExpired,
		Message:  "招待の有効期限が切れています。",
		Category: CategoryExpired,
		Action:   "チームの管理者に招待の再送を依頼してください。",
	}
}

// NewVerificationExpiredError は確認コード・トークンの有効期限切れエラーを生成する。
func NewVerificationExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeVerificationExpired,
		Message:  "確認コードの有効期限が切れています。",
		Category: CategoryExpired,
		Action:   "確認コードを再送信してください。",
	}
}

// NewVerificationMismatchError は確認コードの不一致エラーを生成する。
func NewVerificationMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeVerificationMismatch,
		Message:  "確認コードが一致しません。",
		Category: CategoryValidation,
		Action:   "届いたコードを確認して再入力してください。",
	}
}

// NewAlreadyVerifiedError は確認済みの電話番号・メールアドレスに再度確認を発行しようとした場合のエラーを生成する。
// targetには「電話番号」「メールアドレス」等を渡す。
func NewAlreadyVerifiedError(target string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyVerified,
		Message:  fmt.Sprintf("この%sは既に確認済みです。", target),
		Category: CategoryConflict,
		Action:   "別の連絡先を登録する場合は新しい値を入力してください。",
	}
}

// NewInvalidPhoneError は電話番号の形式エラーを生成する。
func NewInvalidPhoneError(phone string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPhone,
		Message:  fmt.Sprintf("無効な電話番号です: %s", phone),
		Category: CategoryValidation,
		Action:   "市外局番を含む10桁または国番号付きの11桁で入力してください。",
	}
}

// NewInvalidInputError は入力値のバリデーションエラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。",
	}
}

// NewDeliveryFailedError はメール・SMSの送信失敗を表す警告を生成する。
// 呼び出し元の操作は成功として扱い、この値は警告としてのみ返す。
func NewDeliveryFailedError(channel string) *APIError {
	return &APIError{
		Code:     ErrCodeDeliveryFailed,
		Message:  fmt.Sprintf("%sの送信に失敗しました。", channel),
		Category: CategoryTransport,
		Action:   "しばらく待ってから再送信してください。",
	}
}

// NewTwoFactorUnavailableError は二要素認証ストアが利用できない場合のエラーを生成する。
func NewTwoFactorUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeTwoFactorUnavailable,
		Message:  "二要素認証は現在利用できません。",
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	}
}
