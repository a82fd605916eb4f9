package card

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// DefaultMountTable is the live mount listing the guard consults.
const DefaultMountTable = "/proc/mounts"

// maxMountsPerDevice bounds how many mounts a single card may reasonably
// carry. Hitting it means the table is garbage, not a real card.
const maxMountsPerDevice = 64

// MountEntry is one line of the mount table.
type MountEntry struct {
	Device     string
	MountPoint string
}

// MountGuard unmounts every filesystem backed by the target device before a
// raw transfer touches it. Writing under an active mount risks silent
// corruption from cached filesystem metadata, so any unmount failure aborts
// the whole operation.
type MountGuard struct {
	Fs        afero.Fs
	TablePath string
	// Unmount detaches a single mount point. Defaults to unix.Unmount.
	Unmount func(mountPoint string) error
	Log     logrus.FieldLogger
}

// NewMountGuard returns a guard wired to the live system.
func NewMountGuard() *MountGuard {
	return &MountGuard{
		Fs:        afero.NewOsFs(),
		TablePath: DefaultMountTable,
		Unmount:   func(mp string) error { return unix.Unmount(mp, 0) },
	}
}

// UnmountAllUnder unmounts every mount table entry whose device field has
// devicePath as a literal prefix, so /dev/sdc also catches a mounted
// /dev/sdc1. A scan that matches nothing succeeds without unmounting.
func (g *MountGuard) UnmountAllUnder(devicePath string) error {
	entries, err := g.mountsUnder(devicePath)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		g.log().WithFields(logrus.Fields{"device": ent.Device, "mountpoint": ent.MountPoint}).Debug("unmounting")
		if err := g.Unmount(ent.MountPoint); err != nil {
			return fmt.Errorf("umount %s: %w", ent.MountPoint, err)
		}
	}
	return nil
}

func (g *MountGuard) mountsUnder(devicePath string) ([]MountEntry, error) {
	f, err := g.Fs.Open(g.TablePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.TablePath, err)
	}
	defer f.Close()

	var entries []MountEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		if !strings.HasPrefix(fields[0], devicePath) {
			continue
		}
		if len(entries) == maxMountsPerDevice {
			return nil, fmt.Errorf("device %s mounted too many times", devicePath)
		}
		entries = append(entries, MountEntry{Device: fields[0], MountPoint: fields[1]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", g.TablePath, err)
	}
	return entries, nil
}

func (g *MountGuard) log() logrus.FieldLogger {
	if g.Log != nil {
		return g.Log
	}
	return discardLog
}
