package p2p

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/nodegate/backend/internal/domain/p2p"
)

// 虚拟网卡名称前缀：容器网桥、虚拟机、VPN 隧道与 Apple 私有链路
var virtualInterfacePrefixes = []string{
	"vmnet", "vboxnet", "parallels",
	"veth", "docker", "br-", "virbr", "lxc", "flannel", "cni",
	"tun", "tap", "utun",
	"awdl", "llw",
}

// NetworkManager 选择监听器广播所用的网卡
type NetworkManager struct {
	list func() ([]net.Interface, error)
}

// NewNetworkManager 创建网络管理器
func NewNetworkManager() *NetworkManager {
	return &NetworkManager{list: net.Interfaces}
}

// Interfaces 启用的非回环网卡及其私有 IPv4 地址，物理网卡在前
func (m *NetworkManager) Interfaces() ([]p2p.NetworkInterface, error) {
	interfaces, err := m.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var result []p2p.NetworkInterface
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if ips := lanAddresses(addrs); len(ips) > 0 {
			result = append(result, p2p.NetworkInterface{
				Name:      iface.Name,
				Addresses: ips,
				IsUp:      true,
				IsVirtual: isVirtualInterface(iface.Name),
			})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].IsVirtual != result[j].IsVirtual {
			return !result[i].IsVirtual
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// AdvertiseTargets 广播用的地址与网卡
// 存在物理网卡时忽略虚拟网卡，避免把容器网桥地址发布到局域网
func (m *NetworkManager) AdvertiseTargets() ([]string, []net.Interface, error) {
	interfaces, err := m.Interfaces()
	if err != nil {
		return nil, nil, err
	}
	if len(interfaces) > 0 && !interfaces[0].IsVirtual {
		physical := interfaces[:0]
		for _, iface := range interfaces {
			if !iface.IsVirtual {
				physical = append(physical, iface)
			}
		}
		interfaces = physical
	}

	var ips []string
	var ifaces []net.Interface
	for _, iface := range interfaces {
		sys, err := net.InterfaceByName(iface.Name)
		if err != nil {
			continue
		}
		ips = append(ips, iface.Addresses...)
		ifaces = append(ifaces, *sys)
	}
	if len(ips) == 0 {
		return nil, nil, p2p.ErrNoValidInterface
	}
	return ips, ifaces, nil
}

// lanAddresses 过滤出可广播的 IPv4 地址
func lanAddresses(addrs []net.Addr) []string {
	var out []string
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil && isValidLANAddress(ip4) {
			out = append(out, ip4.String())
		}
	}
	return out
}

// isValidLANAddress 私有地址段且不是链路本地地址
func isValidLANAddress(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return false
	}
	return ip.IsPrivate()
}

func isVirtualInterface(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
