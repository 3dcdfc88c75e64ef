package verification

import (
	"strings"

	"github.com/hitoshi/jobboard/internal/model"
)

// FormatE164 は入力された電話番号を数字のみに正規化し、E.164形式に変換する。
// 10桁は北米番号として+1を付与し、先頭が1の11桁はそのまま+を付与する。
// 10桁・11桁以外はINVALID_PHONEを返す。
func FormatE164(raw string) (string, error) {
	digits := digitsOnly(raw)
	if !ValidPhone(digits) {
		return "", model.NewInvalidPhoneError(raw)
	}
	if len(digits) == 10 {
		return "+1" + digits, nil
	}
	return "+" + digits, nil
}

// ValidPhone は数字以外を除いた桁数が10桁または11桁かを判定する。
func ValidPhone(raw string) bool {
	n := len(digitsOnly(raw))
	return n == 10 || n == 11
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
