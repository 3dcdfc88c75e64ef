package notify

import (
	"strings"

	"github.com/hitoshi/jobboard/internal/model"
)

// テンプレートで使えるプレースホルダ名
const (
	VarApplicantName = "applicant_name"
	VarJobTitle      = "job_title"
	VarCompanyName   = "company_name"
	VarStageName     = "stage_name"
)

// Vars はプレースホルダの置換値。追加した順序を保持する。
type Vars struct {
	keys   []string
	values map[string]string
}

// NewVars はキーと値を交互に並べた引数からVarsを生成する。
// 奇数個の場合、最後のキーの値は空文字列になる。
func NewVars(pairs ...string) Vars {
	var v Vars
	for i := 0; i < len(pairs); i += 2 {
		value := ""
		if i+1 < len(pairs) {
			value = pairs[i+1]
		}
		v.Set(pairs[i], value)
	}
	return v
}

// Set は値を設定する。既存のキーは順序を変えずに上書きする。
func (v *Vars) Set(key, value string) {
	if v.values == nil {
		v.values = make(map[string]string)
	}
	if _, ok := v.values[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.values[key] = value
}

// Get は値を返す。
func (v Vars) Get(key string) (string, bool) {
	value, ok := v.values[key]
	return value, ok
}

// Keys は追加順のキー一覧を返す。
func (v Vars) Keys() []string {
	return append([]string(nil), v.keys...)
}

// Render はtemplate中の{{key}}をvarsの値で置換する。
// 左から1回だけ走査するため、置換後の値に含まれる{{...}}は再展開しない。
// varsにないプレースホルダはそのまま残す。
func Render(template string, vars Vars) string {
	var b strings.Builder
	b.Grow(len(template))

	rest := template
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:start])
		rest = rest[start:]

		end := strings.Index(rest[2:], "}}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		key := rest[2 : 2+end]
		if value, ok := vars.Get(key); ok {
			b.WriteString(value)
			rest = rest[2+end+2:]
			continue
		}
		// 未知のプレースホルダは開き括弧だけ出力して続きを走査する
		b.WriteString("{{")
		rest = rest[2:]
	}
}

// RenderTemplate はテンプレートの件名と本文を置換する。
func RenderTemplate(tmpl *model.EmailTemplate, vars Vars) (subject, body string) {
	return Render(tmpl.Subject, vars), Render(tmpl.Body, vars)
}
