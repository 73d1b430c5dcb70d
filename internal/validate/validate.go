package validate

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// Reason 校验失败原因
type Reason int

const (
	// ReasonMalformed 语法非法（既不是地址也不是合法CIDR）
	ReasonMalformed Reason = iota
	// ReasonNonPublic 属于私有/环回/链路本地等不可全球路由的范围
	ReasonNonPublic
)

// Error 目的地址校验错误
type Error struct {
	Destination string
	Reason      Reason
	Detail      string
}

// Error 错误文案
func (e *Error) Error() string {
	switch e.Reason {
	case ReasonNonPublic:
		return fmt.Sprintf("destination %q is not public: %s", e.Destination, e.Detail)
	default:
		return fmt.Sprintf("invalid destination %q: %s", e.Destination, e.Detail)
	}
}

// IsMalformed 是否语法错误
func IsMalformed(err error) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Reason == ReasonMalformed
}

// IsNonPublic 是否非公网地址
func IsNonPublic(err error) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Reason == ReasonNonPublic
}

// Destination 校验通过的目的地址
// CIDR 输入保留子网形式，查询命令需要携带前缀长度
type Destination struct {
	Addr   netip.Addr
	Prefix netip.Prefix
	IsCIDR bool
}

// String 规范化形式，用于拼接查询命令
func (d Destination) String() string {
	if d.IsCIDR {
		return d.Prefix.String()
	}
	return d.Addr.String()
}

// Family 地址族标签（日志与历史记录用）
func (d Destination) Family() string {
	if d.Addr.Is6() {
		return "IPv6"
	}
	return "IPv4"
}

// Validate 校验目的地址：裸 IPv4/IPv6 地址或 CIDR 子网
// 纯函数，任何网络动作之前执行；私有/保留范围在这里被拒绝，
// 绝不会有非公网目的地址到达会话层
func Validate(destination string) (Destination, error) {
	raw := strings.TrimSpace(destination)
	if raw == "" {
		return Destination{}, &Error{Destination: destination, Reason: ReasonMalformed, Detail: "empty input"}
	}

	if strings.Contains(raw, "/") {
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return Destination{}, &Error{Destination: raw, Reason: ReasonMalformed, Detail: err.Error()}
		}
		// 公网范围按网络地址判定，主机位先归零
		network := prefix.Masked().Addr().Unmap()
		if detail, ok := nonPublicReason(network); ok {
			return Destination{}, &Error{Destination: raw, Reason: ReasonNonPublic, Detail: detail}
		}
		return Destination{Addr: network, Prefix: prefix, IsCIDR: true}, nil
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return Destination{}, &Error{Destination: raw, Reason: ReasonMalformed, Detail: err.Error()}
	}
	addr = addr.Unmap()
	if detail, ok := nonPublicReason(addr); ok {
		return Destination{}, &Error{Destination: raw, Reason: ReasonNonPublic, Detail: detail}
	}
	return Destination{Addr: addr}, nil
}

// reservedRanges 标准库分类之外的不可全球路由范围
var reservedRanges = []struct {
	prefix netip.Prefix
	label  string
}{
	{netip.MustParsePrefix("100.64.0.0/10"), "shared address space (CGNAT)"},
	{netip.MustParsePrefix("192.0.0.0/24"), "IETF protocol assignments"},
	{netip.MustParsePrefix("192.0.2.0/24"), "documentation range"},
	{netip.MustParsePrefix("198.18.0.0/15"), "benchmarking range"},
	{netip.MustParsePrefix("198.51.100.0/24"), "documentation range"},
	{netip.MustParsePrefix("203.0.113.0/24"), "documentation range"},
	{netip.MustParsePrefix("240.0.0.0/4"), "reserved range"},
	{netip.MustParsePrefix("2001:db8::/32"), "documentation range"},
	{netip.MustParsePrefix("2001:2::/48"), "benchmarking range"},
}

// nonPublicReason 判断地址是否不可全球路由，返回具体原因
func nonPublicReason(addr netip.Addr) (string, bool) {
	switch {
	case addr.IsUnspecified():
		return "unspecified address", true
	case addr.IsLoopback():
		return "loopback address", true
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return "link-local address", true
	case addr.IsMulticast():
		return "multicast address", true
	case addr.IsPrivate():
		return "private address", true
	}
	if addr.Is4() && addr == netip.MustParseAddr("255.255.255.255") {
		return "broadcast address", true
	}
	for _, r := range reservedRanges {
		if r.prefix.Contains(addr) {
			return r.label, true
		}
	}
	return "", false
}
