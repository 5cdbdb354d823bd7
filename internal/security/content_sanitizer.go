// Package security は利用者が入力したコンテンツと外部URLの安全性を扱う。
//
// 募集本文は許可リスト方式でHTMLをサニタイズし、後記はタグをすべて除去した
// プレーンテキストとして保存する。どちらもbluemondayのポリシーで処理する。
package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer は投稿本文と後記のサニタイズ機能を定義する。
type ContentSanitizer interface {
	// SanitizePost は募集本文のHTMLを許可タグのみに絞り込む。
	SanitizePost(rawHTML string) string
	// PlainText はタグを除去し、前後の空白を落としたテキストを返す。
	PlainText(raw string) string
}

type contentSanitizer struct {
	post  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerを生成する。
// 本文ポリシー:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, strong, em, h3, h4, img
//   - a: hrefは絶対URLのみ、target="_blank"とrel="noreferrer"を付与
//   - img: srcはhttpsのみ
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "strong", "em", "h3", "h4",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})

	return &contentSanitizer{
		post:  p,
		plain: bluemonday.StrictPolicy(),
	}
}

func (s *contentSanitizer) SanitizePost(rawHTML string) string {
	return strings.TrimSpace(s.post.Sanitize(rawHTML))
}

// PlainText はStrictPolicyでタグを落とした後、エスケープされた実体参照を元の文字に戻す。
// 表示側で必ずエスケープされる前提。
func (s *contentSanitizer) PlainText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.plain.Sanitize(raw)))
}
