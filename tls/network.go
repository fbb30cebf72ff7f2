// Package tls provides automatic TLS certificate management with
// cross-platform trust store installation.
package tls

import "net"

// LANAddresses returns all local non-loopback IPv4 addresses.
func LANAddresses() ([]string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && ip.To4() != nil && !ip.IsLoopback() {
				ips = append(ips, ip.String())
			}
		}
	}
	return ips, nil
}

// CertificateHosts returns localhost plus LAN addresses, the host set a
// generated certificate must cover.
func CertificateHosts() ([]string, error) {
	hosts := []string{"localhost", "127.0.0.1"}

	lanIPs, err := LANAddresses()
	if err != nil {
		return hosts, err
	}
	return append(hosts, lanIPs...), nil
}
