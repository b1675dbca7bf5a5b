package p2p

import "github.com/google/wire"

// ProviderSet P2P 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	NewNetworkManager,
	NewMDNSDiscovery,
	ProvideListenerAnnouncer,
)

// AnnouncerVersion 广播的版本号
type AnnouncerVersion string

// ProvideListenerAnnouncer 提供监听器广播管理
func ProvideListenerAnnouncer(netMgr *NetworkManager, version AnnouncerVersion) *ListenerAnnouncer {
	return NewListenerAnnouncer(netMgr, string(version))
}
