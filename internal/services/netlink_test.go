package services

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
)

func TestDescribeLink(t *testing.T) {
	link := &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{
		Index:        3,
		Name:         "dummy0",
		MTU:          1500,
		HardwareAddr: net.HardwareAddr{0x00, 0x01, 0x02, 0x03, 0x04, 0x05},
		Flags:        net.FlagUp | net.FlagBroadcast,
		OperState:    netlink.OperUnknown,
	}}

	iface := describeLink(link)
	assert.Equal(t, 3, iface.Index)
	assert.Equal(t, "dummy0", iface.Name)
	assert.Equal(t, "dummy", iface.Type)
	assert.Equal(t, "00:01:02:03:04:05", iface.MAC)
	assert.Equal(t, "UP", iface.State)
	assert.Equal(t, []string{"UP", "BROADCAST"}, iface.Flags)
}

func TestDescribeLinkDown(t *testing.T) {
	link := &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Name: "dummy1", OperState: netlink.OperDown}}

	iface := describeLink(link)
	assert.Equal(t, "DOWN", iface.State)
	assert.Empty(t, iface.MAC)
	assert.Empty(t, iface.Flags)
}

func TestInterfaceListError(t *testing.T) {
	svc := &InterfaceService{list: func() ([]netlink.Link, error) {
		return nil, errors.New("operation not permitted")
	}}

	_, err := svc.List()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation not permitted")
}
