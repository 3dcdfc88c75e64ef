// Package security はユーザー入力のサニタイズを提供する。
//
// 求人の説明文は許可リストのHTMLのみを残し、カバーレター・メモ・メッセージ等の
// プレーンテキスト項目はタグを全て除去して保存する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はユーザー入力のサニタイズを行う。
// bluemondayのポリシーはスレッドセーフなので1インスタンスを共有してよい。
type Sanitizer struct {
	rich   *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
// リッチテキストの許可タグ: p, br, ul, ol, li, blockquote, strong, em, a(href)。
// aタグには target="_blank" と rel="noopener noreferrer" を付与する。
func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "strong", "em",
	)
	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &Sanitizer{
		rich:   p,
		strict: bluemonday.StrictPolicy(),
	}
}

// RichText は求人の説明文など、書式付きで表示する項目をサニタイズする。
func (s *Sanitizer) RichText(raw string) string {
	return strings.TrimSpace(s.rich.Sanitize(raw))
}

// Text はプレーンテキスト項目からタグを除去する。
// 文字参照は元の文字に戻し、表示側でエスケープする前提で保存する。
func (s *Sanitizer) Text(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(raw)))
}
