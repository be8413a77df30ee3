// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はパスの理由などの自由記述フィールドをサニタイズし、
// ダッシュボードでの表示時にXSS攻撃が成立しないことを保証する。
// bluemondayのStrictPolicyを使用し、HTMLタグをすべて除去した
// プレーンテキストのみを保存する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は自由記述テキストのサニタイズ機能のインターフェースを定義する。
// パスの発行時、保存前に使用される。
type TextSanitizerService interface {
	// Sanitize は入力テキストからHTMLタグをすべて除去し、
	// 前後の空白を取り除いたプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはすべてのタグと属性を除去する。
// 行き先や理由はプレーンテキストであるべきフィールドのため、
// 許可リスト方式ではなく全除去方式を採用する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力テキストからHTMLをすべて除去する。
// StrictPolicyはタグ除去後にエンティティ参照を残すため、
// 表示用のプレーンテキストとしてアンエスケープしてから返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
