//go:build linux

package netns

import (
	"bytes"
	"fmt"
	stdnet "net"
	"os"
	"path/filepath"
	"time"

	"github.com/apparentlymart/go-cidr/cidr"
	bolt "go.etcd.io/bbolt"
)

const defaultIPAMDBPath = "/var/run/oj-judger/ipam.db"

// IPAMOptions configures the bridged-mode IP allocator.
type IPAMOptions struct {
	SubnetCIDR string
	DBPath     string
	Reserved   []stdnet.IP
}

// IPAMAllocator represents one leased IP within a bridge subnet, backed by
// a bbolt database so leases survive across concurrent engine calls in
// the same process (and across process restarts, since the lease state is
// durable). Adapted from the teacher's net/ipam.go.
type IPAMAllocator struct {
	dbPath   string
	bucket   []byte
	prefix   int
	ip       stdnet.IP
	reserved map[string]struct{}
}

// AllocateIP reserves the next free address in opts.SubnetCIDR.
func AllocateIP(opts IPAMOptions) (*IPAMAllocator, error) {
	if opts.SubnetCIDR == "" {
		return nil, fmt.Errorf("netns: SubnetCIDR must be provided")
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultIPAMDBPath
	}

	_, ipNet, err := stdnet.ParseCIDR(opts.SubnetCIDR)
	if err != nil {
		return nil, fmt.Errorf("invalid subnet CIDR: %w", err)
	}
	if ipNet.IP.To4() == nil {
		return nil, fmt.Errorf("only IPv4 subnets supported")
	}
	prefixLen, _ := ipNet.Mask.Size()

	first, last := cidr.AddressRange(ipNet)
	reserved := map[string]struct{}{
		first.String(): {},
		last.String():  {},
	}
	for _, r := range opts.Reserved {
		if r4 := r.To4(); r4 != nil {
			reserved[r4.String()] = struct{}{}
		}
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ipam: mkdir: %w", err)
	}

	var picked stdnet.IP
	if err := withDB(dbPath, func(db *bolt.DB) error {
		bucket := []byte(opts.SubnetCIDR)
		return db.Update(func(tx *bolt.Tx) error {
			bkt, err := tx.CreateBucketIfNotExists(bucket)
			if err != nil {
				return err
			}

			for cur := cidr.Inc(first); bytes.Compare(cur, last) < 0; cur = cidr.Inc(cur) {
				s := cur.String()
				if _, skip := reserved[s]; skip {
					continue
				}
				if v := bkt.Get([]byte(s)); v != nil {
					continue
				}
				if err := bkt.Put([]byte(s), []byte{1}); err != nil {
					return fmt.Errorf("reserve %s: %w", s, err)
				}
				picked = append(stdnet.IP(nil), cur...)
				return nil
			}
			return fmt.Errorf("no free IPs in %s", opts.SubnetCIDR)
		})
	}); err != nil {
		return nil, fmt.Errorf("ipam: open DB: %w", err)
	}

	return &IPAMAllocator{
		dbPath:   dbPath,
		bucket:   []byte(opts.SubnetCIDR),
		prefix:   prefixLen,
		ip:       picked,
		reserved: reserved,
	}, nil
}

// IP returns the allocated address in CIDR notation.
func (ia *IPAMAllocator) IP() string {
	return fmt.Sprintf("%s/%d", ia.ip.String(), ia.prefix)
}

// Release frees the allocated address. Safe to call more than once.
func (ia *IPAMAllocator) Release() error {
	return withDB(ia.dbPath, func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			bkt := tx.Bucket(ia.bucket)
			if bkt == nil {
				return nil
			}
			return bkt.Delete([]byte(ia.ip.String()))
		})
	})
}

func withDB(path string, f func(*bolt.DB) error) error {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return f(db)
}
