package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// URLGuard は外部URLの静的検証と、内部ネットワークへ到達できないHTTPクライアントを提供する。
type URLGuard interface {
	// ValidateImageURL は募集の画像リンクを検証する。httpsの公開ホストのみ許可する。
	ValidateImageURL(rawURL string) error
	// ValidateWebhookURL はキャッシュ無効化Webhookの送信先を検証する。http/httpsを許可する。
	ValidateWebhookURL(rawURL string) error
	// NewSafeClient はDNS解決後のIPも検査するHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration) *http.Client
}

var (
	ErrEmptyURL           = errors.New("empty URL")
	ErrDisallowedScheme   = errors.New("disallowed URL scheme")
	ErrBlockedDestination = errors.New("blocked destination")
)

var blockedNetworks []net.IPNet

func init() {
	for _, cidr := range []string{
		"0.0.0.0/8",
		"10.0.0.0/8",
		"100.64.0.0/10",
		"127.0.0.0/8",
		"169.254.0.0/16", // メタデータIPを含む
		"172.16.0.0/12",
		"192.168.0.0/16",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	} {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

type urlGuard struct{}

// NewURLGuard はURLGuardを生成する。
func NewURLGuard() *urlGuard {
	return &urlGuard{}
}

func (g *urlGuard) ValidateImageURL(rawURL string) error {
	return validate(rawURL, "https")
}

func (g *urlGuard) ValidateWebhookURL(rawURL string) error {
	return validate(rawURL, "http", "https")
}

// NewSafeClient はsafeurlでラップしたクライアントを返す。
// 接続時のDialerフックでプライベート・ループバック・リンクローカル宛てを拒否する。
func (g *urlGuard) NewSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

// validate はDNS解決を伴わない静的チェック。名前解決後の検査はNewSafeClient側で行う。
func validate(rawURL string, schemes ...string) error {
	if strings.TrimSpace(rawURL) == "" {
		return ErrEmptyURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range schemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %q", ErrDisallowedScheme, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrBlockedDestination)
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("%w: %s", ErrBlockedDestination, host)
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, n := range blockedNetworks {
			if n.Contains(ip) {
				return fmt.Errorf("%w: %s", ErrBlockedDestination, ip)
			}
		}
	}
	return nil
}
