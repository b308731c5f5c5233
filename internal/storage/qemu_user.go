package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"sync"
)

// qemuConfPath is where libvirt's QEMU driver reads its process identity.
const qemuConfPath = "/etc/libvirt/qemu.conf"

var (
	qemuUID  string
	qemuGID  string
	qemuOnce sync.Once
	qemuErr  error
)

// GetQEMUUserGroup returns the UID and GID that QEMU processes run as, so
// pool directories and uploaded volumes are readable by the guest.
//
// The user comes from qemu.conf when set, then the common qemu and
// libvirt-qemu accounts, then 107 as a last resort. The result is cached.
func GetQEMUUserGroup() (uid, gid string, err error) {
	qemuOnce.Do(func() {
		var username, groupname string
		if f, err := os.Open(qemuConfPath); err == nil {
			username, groupname = parseQEMUConf(f)
			_ = f.Close()
		}
		qemuUID, qemuGID, qemuErr = resolveQEMUUser(username, groupname, user.Lookup, user.LookupGroup)
	})

	return qemuUID, qemuGID, qemuErr
}

func resolveQEMUUser(
	username, groupname string,
	lookupUser func(string) (*user.User, error),
	lookupGroup func(string) (*user.Group, error),
) (string, string, error) {
	candidates := []string{"qemu", "libvirt-qemu"}
	if username != "" {
		candidates = append([]string{username}, candidates...)
	}

	for i, name := range candidates {
		u, err := lookupUser(name)
		if err != nil {
			continue
		}
		gid := u.Gid
		if i == 0 && username != "" && groupname != "" {
			if g, err := lookupGroup(groupname); err == nil {
				gid = g.Gid
			}
		}
		return u.Uid, gid, nil
	}

	return "107", "107", fmt.Errorf("could not determine QEMU user/group, using fallback UID/GID 107")
}

// parseQEMUConf extracts the user and group settings from qemu.conf
// content. Missing settings come back empty.
func parseQEMUConf(r io.Reader) (username, groupname string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		switch strings.TrimSpace(key) {
		case "user":
			username = value
		case "group":
			groupname = value
		}
	}

	return username, groupname
}
