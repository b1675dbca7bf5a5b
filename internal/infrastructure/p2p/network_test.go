package p2p

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodegate/backend/internal/domain/p2p"
)

func TestNetworkManager_Interfaces(t *testing.T) {
	mgr := NewNetworkManager()

	interfaces, err := mgr.Interfaces()
	require.NoError(t, err)

	seenVirtual := false
	for _, iface := range interfaces {
		assert.NotEmpty(t, iface.Name)
		assert.True(t, iface.IsUp)

		if iface.IsVirtual {
			seenVirtual = true
		} else {
			assert.False(t, seenVirtual, "physical interface %s sorted after a virtual one", iface.Name)
		}
		for _, addr := range iface.Addresses {
			assert.True(t, isValidLANAddress(net.ParseIP(addr).To4()), addr)
		}
	}
}

func TestNetworkManager_ListError(t *testing.T) {
	mgr := &NetworkManager{list: func() ([]net.Interface, error) {
		return nil, errors.New("permission denied")
	}}

	_, err := mgr.Interfaces()
	assert.ErrorContains(t, err, "permission denied")

	_, _, err = mgr.AdvertiseTargets()
	assert.Error(t, err)
}

func TestNetworkManager_AdvertiseTargetsNoInterfaces(t *testing.T) {
	mgr := &NetworkManager{list: func() ([]net.Interface, error) {
		return nil, nil
	}}

	_, _, err := mgr.AdvertiseTargets()
	assert.ErrorIs(t, err, p2p.ErrNoValidInterface)
}

func TestIsValidLANAddress(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"192.168.1.10", true},
		{"10.0.0.1", true},
		{"172.16.5.4", true},
		{"127.0.0.1", false},
		{"169.254.1.1", false},
		{"8.8.8.8", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, isValidLANAddress(net.ParseIP(tt.ip).To4()))
		})
	}
}

func TestIsVirtualInterface(t *testing.T) {
	assert.True(t, isVirtualInterface("docker0"))
	assert.True(t, isVirtualInterface("vboxnet1"))
	assert.True(t, isVirtualInterface("utun3"))
	assert.True(t, isVirtualInterface("Parallels0"))
	assert.False(t, isVirtualInterface("en0"))
	assert.False(t, isVirtualInterface("eth0"))
}
