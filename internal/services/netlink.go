package services

import (
	"fmt"
	"net"

	"asteriskgui/internal/models"

	"github.com/vishvananda/netlink"
)

// InterfaceService lists host interfaces so operators can pick bind and
// trunk source addresses.
type InterfaceService struct {
	list func() ([]netlink.Link, error)
}

func NewInterfaceService() *InterfaceService {
	return &InterfaceService{list: netlink.LinkList}
}

func (s *InterfaceService) List() ([]models.NetworkInterface, error) {
	links, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	interfaces := make([]models.NetworkInterface, 0, len(links))
	for _, link := range links {
		iface := describeLink(link)

		addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
		if err == nil {
			for _, addr := range addrs {
				if addr.IP.To4() != nil {
					iface.IPv4Addrs = append(iface.IPv4Addrs, addr.IPNet.String())
				} else {
					iface.IPv6Addrs = append(iface.IPv6Addrs, addr.IPNet.String())
				}
			}
		}

		interfaces = append(interfaces, iface)
	}

	return interfaces, nil
}

func describeLink(link netlink.Link) models.NetworkInterface {
	attrs := link.Attrs()
	iface := models.NetworkInterface{
		Index: attrs.Index,
		Name:  attrs.Name,
		MTU:   attrs.MTU,
		Type:  link.Type(),
	}

	if attrs.HardwareAddr != nil {
		iface.MAC = attrs.HardwareAddr.String()
	}

	switch {
	case attrs.OperState == netlink.OperUp:
		iface.State = "UP"
	case attrs.OperState == netlink.OperDown:
		iface.State = "DOWN"
	case attrs.Flags&net.FlagUp != 0:
		iface.State = "UP"
	default:
		iface.State = "DOWN"
	}

	for _, f := range []struct {
		flag net.Flags
		name string
	}{
		{net.FlagUp, "UP"},
		{net.FlagBroadcast, "BROADCAST"},
		{net.FlagLoopback, "LOOPBACK"},
		{net.FlagPointToPoint, "POINTTOPOINT"},
		{net.FlagMulticast, "MULTICAST"},
	} {
		if attrs.Flags&f.flag != 0 {
			iface.Flags = append(iface.Flags, f.name)
		}
	}
	return iface
}
