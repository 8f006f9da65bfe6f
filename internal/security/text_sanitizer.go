// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は氏名・説明・場所などの自由入力テキストからマークアップを除去する。
// bluemondayのStrictPolicyで全タグを落とし、プレーンテキストとして保存する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由入力テキストのサニタイズ機能のインターフェース。
type TextSanitizer interface {
	// Clean はタグを除去し前後の空白を取り除いたプレーンテキストを返す。
	// script, styleタグは中身ごと除去する。
	Clean(raw string) string

	// CleanPtr はnilを保ったままCleanを適用する。
	CleanPtr(raw *string) *string
}

// textSanitizer はTextSanitizerの実装。bluemondayのポリシーは並行利用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// maxCleanPasses はタグ除去を繰り返す上限回数。
const maxCleanPasses = 4

// Clean はタグを除去したプレーンテキストを返す。
// 実体参照で書かれたタグも除去対象とするため、先に実体参照を戻してから除去する。
// 除去後に戻した文字が新たなタグを作らなくなるまで繰り返し、
// 上限回数で収まらない場合はエスケープしたまま返す。
func (s *textSanitizer) Clean(raw string) string {
	text := html.UnescapeString(raw)
	for i := 0; i < maxCleanPasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(text))
		if next == text {
			return strings.TrimSpace(text)
		}
		text = next
	}
	return strings.TrimSpace(s.policy.Sanitize(text))
}

// CleanPtr はnilを保ったままCleanを適用する。
func (s *textSanitizer) CleanPtr(raw *string) *string {
	if raw == nil {
		return nil
	}
	cleaned := s.Clean(*raw)
	return &cleaned
}
