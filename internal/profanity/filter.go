// Package profanity は投稿・後記・プロフィールに含まれる不適切な表現を検出する。
package profanity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// defaultWords は既定の禁止語。比較は正規化後の部分一致で行う。
// 「새끼」単体は動物カテゴリで普通に使われるため含めない。
var defaultWords = []string{
	"씨발", "시발", "씨팔", "ㅅㅂ", "ㅆㅂ",
	"병신", "ㅂㅅ", "개새끼", "개새기", "지랄", "ㅈㄹ",
	"좆", "존나", "졸라", "미친놈", "미친년", "닥쳐", "엠창", "느금마",
	"fuck", "shit", "bitch", "asshole", "bastard", "motherfucker",
}

// Field は検査対象の入力項目。Labelはエラーメッセージに使う項目名。
type Field struct {
	Label string
	Value string
}

// Filter は禁止語リストによる表現チェッカー。生成後は読み取り専用で、並行利用できる。
type Filter struct {
	words []string
}

// NewFilter は既定の禁止語にextraを加えたFilterを生成する。
func NewFilter(extra ...string) *Filter {
	seen := make(map[string]struct{})
	f := &Filter{}
	for _, w := range append(append([]string{}, defaultWords...), extra...) {
		n := normalize(w)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		f.words = append(f.words, n)
	}
	return f
}

// IsProfane はtextに禁止語が含まれるかを返す。
// 正規化した原文と、空白・記号を取り除いた文字列の両方を検査する。
func (f *Filter) IsProfane(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	n := normalize(text)
	if f.contains(n) {
		return true
	}

	stripped := strip(n)
	return stripped != "" && f.contains(stripped)
}

// Validate は項目を順に検査し、最初に禁止語が見つかった項目のラベルを返す。
// 問題がなければ空文字とfalseを返す。
func (f *Filter) Validate(fields ...Field) (string, bool) {
	for _, field := range fields {
		if f.IsProfane(field.Value) {
			return field.Label, true
		}
	}
	return "", false
}

func (f *Filter) contains(s string) bool {
	for _, w := range f.words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// normalize は全角・互換文字をNFKCで畳み込み、大文字小文字を区別しない形にする。
func normalize(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

// strip は文字と数字以外（空白・記号）を取り除く。
func strip(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
