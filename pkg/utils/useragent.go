package utils

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/host"
)

var (
	uaOnce   sync.Once
	uaSuffix string
)

// UserAgent 生成请求使用的User-Agent，例如 "fwctl/1.2.0 (linux; ubuntu 22.04; x86_64)"
// 主机信息只采集一次，采集失败时退回到runtime信息
func UserAgent(product, version string) string {
	uaOnce.Do(func() {
		uaSuffix = platformSuffix()
	})
	return fmt.Sprintf("%s/%s (%s)", product, version, uaSuffix)
}

func platformSuffix() string {
	info, err := host.Info()
	if err != nil || info == nil {
		return fmt.Sprintf("%s; %s", runtime.GOOS, runtime.GOARCH)
	}

	arch := info.KernelArch
	if arch == "" {
		arch = runtime.GOARCH
	}
	if info.Platform == "" {
		return fmt.Sprintf("%s; %s", info.OS, arch)
	}
	return fmt.Sprintf("%s; %s %s; %s", info.OS, info.Platform, info.PlatformVersion, arch)
}
