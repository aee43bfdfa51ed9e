package models

type NetworkInterface struct {
	Index     int      `json:"index"`
	Name      string   `json:"name"`
	MAC       string   `json:"mac"`
	MTU       int      `json:"mtu"`
	State     string   `json:"state"`
	Type      string   `json:"type"`
	IPv4Addrs []string `json:"ipv4_addrs"`
	IPv6Addrs []string `json:"ipv6_addrs"`
	Flags     []string `json:"flags"`
}

type HostInfo struct {
	Hostname      string `json:"hostname"`
	KernelVersion string `json:"kernelVersion"`
	Uptime        string `json:"uptime"`
	LoadAverage   string `json:"loadAverage"`
	MemoryUsed    string `json:"memoryUsed"`
	MemoryTotal   string `json:"memoryTotal"`
	MemoryPercent int    `json:"memoryPercent"`
}
