//go:build linux

package netns

import (
	"fmt"
	"os"
	"time"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// setupVeth creates (or reuses) the judge bridge, a veth pair into the
// child's network namespace, and configures the child-side interface with
// containerIP. Adapted from the teacher's SetupVethNetworking/
// CreateBridge/CreateVethPair/configureContainerInterface, with the NAT/
// forwarding branch removed entirely (see netns.go doc comment).
func setupVeth(cfg BridgeConfig, containerIP string) (func() error, error) {
	bridge, err := createBridge(cfg.BridgeName, cfg.BridgeIP, cfg.MTU)
	if err != nil {
		return nil, fmt.Errorf("create bridge: %w", err)
	}

	hostIf, peerName, err := createVethPair(bridge, cfg)
	if err != nil {
		return nil, fmt.Errorf("create veth pair: %w", err)
	}

	if err := configureContainerInterface(cfg.ChildPID, peerName, cfg.ContainerIf, containerIP, cfg.BridgeIP); err != nil {
		return nil, fmt.Errorf("configure container interface: %w", err)
	}

	if err := netlink.LinkSetUp(hostIf); err != nil {
		return nil, fmt.Errorf("host veth up: %w", err)
	}

	cleanup := func() error {
		if err := netlink.LinkDel(hostIf); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete host veth: %w", err)
		}
		return nil
	}
	return cleanup, nil
}

func createBridge(name, cidrAddr string, mtu int) (netlink.Link, error) {
	if l, err := netlink.LinkByName(name); err == nil {
		if err := netlink.LinkSetUp(l); err != nil {
			return nil, err
		}
		if cidrAddr != "" {
			if err := AssignAddr(l, cidrAddr); err != nil {
				return nil, err
			}
		}
		return l, nil
	}

	bridge := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: name, MTU: mtu}}
	if err := netlink.LinkAdd(bridge); err != nil && !os.IsExist(err) {
		return nil, err
	}
	if err := netlink.LinkSetUp(bridge); err != nil {
		return nil, err
	}
	if cidrAddr != "" {
		if err := AssignAddr(bridge, cidrAddr); err != nil {
			return nil, err
		}
	}
	return bridge, nil
}

func createVethPair(bridge netlink.Link, cfg BridgeConfig) (netlink.Link, string, error) {
	hostName := fmt.Sprintf("voj%d", cfg.ChildPID)
	peerName := fmt.Sprintf("c%s", hostName)

	v := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: hostName, MTU: cfg.MTU, MasterIndex: bridge.Attrs().Index},
		PeerName:  peerName,
	}

	if err := netlink.LinkAdd(v); err != nil && err != unix.EEXIST {
		return nil, "", err
	}

	hostIf, err := netlink.LinkByName(hostName)
	if err != nil {
		return nil, "", err
	}
	peerIf, err := netlink.LinkByName(peerName)
	if err != nil {
		return nil, "", err
	}

	if hostIf.Attrs().MasterIndex != bridge.Attrs().Index {
		if err := netlink.LinkSetMaster(hostIf, bridge); err != nil && err != unix.EEXIST {
			return nil, "", fmt.Errorf("attach host veth to bridge: %w", err)
		}
	}
	if err := netlink.LinkSetUp(hostIf); err != nil && err != unix.EEXIST {
		return nil, "", err
	}

	if err := netlink.LinkSetNsPid(peerIf, cfg.ChildPID); err != nil {
		return nil, "", err
	}

	return hostIf, peerName, nil
}

func configureContainerInterface(childPID int, tempName, finalName, addrCIDR, gwCIDR string) error {
	hostNS, err := netns.Get()
	if err != nil {
		return err
	}
	defer hostNS.Close()

	targetNS, err := netns.GetFromPid(childPID)
	if err != nil {
		return err
	}
	defer targetNS.Close()

	if err := netns.Set(targetNS); err != nil {
		return err
	}
	defer func() { _ = netns.Set(hostNS) }()

	link, err := waitLinkByName(tempName, 5*time.Second)
	if err != nil {
		return fmt.Errorf("wait veth %s in ns: %w", tempName, err)
	}

	if finalName != tempName {
		if err := netlink.LinkSetName(link, finalName); err != nil {
			return fmt.Errorf("rename %s->%s: %w", tempName, finalName, err)
		}
		link, err = waitLinkByName(finalName, 5*time.Second)
		if err != nil {
			return err
		}
	}

	if lo, _ := netlink.LinkByName("lo"); lo != nil {
		_ = netlink.LinkSetUp(lo)
	}

	if err := netlink.LinkSetUp(link); err != nil && err != unix.EEXIST {
		return fmt.Errorf("link up: %w", err)
	}

	if addrCIDR != "" {
		if err := AssignAddr(link, addrCIDR); err != nil {
			time.Sleep(100 * time.Millisecond)
			if err2 := AssignAddr(link, addrCIDR); err2 != nil {
				return err
			}
		}
	}

	// Intentionally no default route via gwCIDR: a judge sandbox bridge
	// never routes outbound, so the child only ever reaches peers and
	// judge-side services directly attached to the same bridge subnet.
	_ = gwCIDR

	return nil
}

func waitLinkByName(name string, timeout time.Duration) (netlink.Link, error) {
	deadline := time.Now().Add(timeout)
	for {
		if link, err := netlink.LinkByName(name); err == nil {
			return link, nil
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil, fmt.Errorf("link %q not found", name)
}
