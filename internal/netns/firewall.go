//go:build linux

package netns

import (
	"fmt"

	"github.com/coreos/go-iptables/iptables"
)

// lockBridgeForwarding installs iptables rules that confine forwarded
// traffic to the bridge's own subnet and drop everything else. Unlike the
// teacher's AddForwardingRules/AddMasqueradeRule, there is no ACCEPT rule
// towards the host's default egress interface and no MASQUERADE: a judge
// bridge must never reach the internet, so this only ever narrows, never
// opens, the FORWARD chain.
func lockBridgeForwarding(bridgeName, subnetCIDR string) error {
	ipt, err := iptables.New()
	if err != nil {
		return fmt.Errorf("iptables: %w", err)
	}

	// Each rule is inserted at position 1, so the ACCEPT is inserted last
	// to end up ahead of the two DROPs.
	dropOut := []string{"-i", bridgeName, "-j", "DROP"}
	if err := ensureIptRule(ipt, "filter", "FORWARD", dropOut); err != nil {
		return err
	}
	dropIn := []string{"-o", bridgeName, "-j", "DROP"}
	if err := ensureIptRule(ipt, "filter", "FORWARD", dropIn); err != nil {
		return err
	}

	if subnetCIDR != "" {
		localRule := []string{"-i", bridgeName, "-o", bridgeName, "-s", subnetCIDR, "-d", subnetCIDR, "-j", "ACCEPT"}
		if err := ensureIptRule(ipt, "filter", "FORWARD", localRule); err != nil {
			return err
		}
	}

	return nil
}

// unlockBridgeForwarding removes the rules installed by
// lockBridgeForwarding, best-effort, ignoring rules that are already gone.
func unlockBridgeForwarding(bridgeName, subnetCIDR string) error {
	ipt, err := iptables.New()
	if err != nil {
		return fmt.Errorf("iptables: %w", err)
	}

	if subnetCIDR != "" {
		_ = ipt.DeleteIfExists("filter", "FORWARD", "-i", bridgeName, "-o", bridgeName, "-s", subnetCIDR, "-d", subnetCIDR, "-j", "ACCEPT")
	}
	_ = ipt.DeleteIfExists("filter", "FORWARD", "-i", bridgeName, "-j", "DROP")
	_ = ipt.DeleteIfExists("filter", "FORWARD", "-o", bridgeName, "-j", "DROP")
	return nil
}

func ensureIptRule(ipt *iptables.IPTables, table, chain string, rule []string) error {
	exists, err := ipt.Exists(table, chain, rule...)
	if err != nil {
		return fmt.Errorf("iptables exists %s/%s: %w", table, chain, err)
	}
	if exists {
		return nil
	}
	if err := ipt.Insert(table, chain, 1, rule...); err != nil {
		return fmt.Errorf("iptables insert %s/%s %v: %w", table, chain, rule, err)
	}
	return nil
}
