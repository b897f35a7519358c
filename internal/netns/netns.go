//go:build linux

// Package netns implements the network namespace isolation of §4.6. The
// default, and the only mode SPEC_FULL.md requires the engine to support
// directly, is Isolated: a fresh network namespace with no interfaces
// beyond a down loopback. Bridged mode, adapted from the teacher's
// net.SetupContainerNetworking for judge deployments that need sandboxed
// code to reach a controlled, NAT-less bridge, is available for callers
// that opt in. A judge sandbox must never share the host's network
// namespace, so the teacher's NetHost mode has no equivalent here.
package netns

import (
	"fmt"
	stdnet "net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Result is what a network setup returns to the engine: an IPAM handle
// (nil for Isolated) and a cleanup function to release any host-side
// resources once the sandboxed child has exited.
type Result struct {
	IPAM    *IPAMAllocator
	Cleanup func() error
}

// Isolated creates a new network namespace for the calling child process
// (CLONE_NEWNET via unshare) with no interfaces beyond loopback, and
// leaves loopback itself down — the sandboxed program cannot reach the
// network at all. Must be called in the child, before the jail pivot.
func Isolated() error {
	if err := unix.Unshare(unix.CLONE_NEWNET); err != nil {
		return fmt.Errorf("unshare CLONE_NEWNET: %w", err)
	}
	return nil
}

// BridgeConfig configures the Bridged network mode.
type BridgeConfig struct {
	ChildPID    int
	BridgeName  string
	SubnetCIDR  string
	BridgeIP    string
	ContainerIf string
	MTU         int
	// Reserved lists IPs within SubnetCIDR that must never be handed to a
	// sandboxed run (the bridge address itself, any judge-side services).
	Reserved []stdnet.IP
	// IPAMDBPath is the bbolt lease database backing the IP allocator.
	IPAMDBPath string
}

// Bridged sets up a veth pair into the bridge named by cfg, from the
// parent, after the child (in its own namespace via Isolated) has been
// forked. Unlike the teacher's equivalent, this never enables NAT or IP
// forwarding: a judge sandbox's bridge reaches only other sandboxed peers
// and judge-side services, never the host's default route or the
// internet.
func Bridged(cfg BridgeConfig) (*Result, error) {
	if cfg.BridgeName == "" {
		return nil, fmt.Errorf("netns: bridge name is required")
	}
	if cfg.ContainerIf == "" {
		cfg.ContainerIf = "eth0"
	}
	if cfg.MTU == 0 {
		cfg.MTU = 1500
	}

	ipam, err := AllocateIP(IPAMOptions{
		SubnetCIDR: cfg.SubnetCIDR,
		DBPath:     cfg.IPAMDBPath,
		Reserved:   cfg.Reserved,
	})
	if err != nil {
		return nil, fmt.Errorf("allocate IP: %w", err)
	}

	cleanupVeth, err := setupVeth(cfg, ipam.IP())
	if err != nil {
		_ = ipam.Release()
		return nil, fmt.Errorf("setup veth: %w", err)
	}

	if err := lockBridgeForwarding(cfg.BridgeName, cfg.SubnetCIDR); err != nil {
		_ = cleanupVeth()
		_ = ipam.Release()
		return nil, fmt.Errorf("lock bridge forwarding: %w", err)
	}

	return &Result{
		IPAM: ipam,
		Cleanup: func() error {
			_ = unlockBridgeForwarding(cfg.BridgeName, cfg.SubnetCIDR)
			_ = ipam.Release()
			return cleanupVeth()
		},
	}, nil
}

// AssignAddr assigns the given CIDR address to link, idempotently.
func AssignAddr(link netlink.Link, cidrAddr string) error {
	ip, ipnet, err := stdnet.ParseCIDR(cidrAddr)
	if err != nil {
		return err
	}

	addr := &netlink.Addr{IPNet: &stdnet.IPNet{IP: ip, Mask: ipnet.Mask}}

	addrs, _ := netlink.AddrList(link, unix.AF_INET)
	for _, a := range addrs {
		if a.IPNet.String() == addr.IPNet.String() {
			return nil
		}
	}

	if err := netlink.AddrAdd(link, addr); err != nil && err != unix.EEXIST {
		return fmt.Errorf("addr add %s: %w", addr.IPNet, err)
	}
	return nil
}
