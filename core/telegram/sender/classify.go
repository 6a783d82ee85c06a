package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/netutil"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// classifyError buckets a send failure into a stable err_code.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if kind := transportKind(err); kind != "" {
		return kind
	}
	switch status := httpStatus(err); {
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// transportKind recognises failures below the Bot API: timeouts, DNS, dial,
// TLS and flood control.
func transportKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if _, ok := netutil.FloodWait(err); ok {
		return "rate_limited"
	}
	if dnsErr := (*net.DNSError)(nil); errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}
	if netErr := net.Error(nil); errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if opErr := (*net.OpError)(nil); errors.As(err, &opErr) {
		switch {
		case opErr.Op == "dial":
			return "dial"
		case opErr.Err != nil:
			if kind := transportKind(opErr.Err); kind != "" {
				return kind
			}
		}
	}
	if urlErr := (*url.Error)(nil); errors.As(err, &urlErr) && urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
		if kind := transportKind(urlErr.Err); kind != "" {
			return kind
		}
	}
	if alert := tls.AlertError(0); errors.As(err, &alert) {
		return "tls"
	}
	return ""
}

// httpStatus extracts the Bot API status code. Telebot's plain errors end
// with "(<code>)".
func httpStatus(err error) int {
	if apiErr := (*tele.Error)(nil); errors.As(err, &apiErr) {
		return apiErr.Code
	}
	if _, ok := netutil.FloodWait(err); ok {
		return http.StatusTooManyRequests
	}
	if groupErr := (tele.GroupError{}); errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}
	msg := strings.TrimSpace(err.Error())
	open := strings.LastIndexByte(msg, '(')
	if open < 0 || !strings.HasSuffix(msg, ")") {
		return 0
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : len(msg)-1]))
	if convErr != nil {
		return 0
	}
	return code
}

// sanitizeErrorMessage strips bot tokens from error text before logging.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
