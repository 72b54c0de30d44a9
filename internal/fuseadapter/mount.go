package fuseadapter

import (
	"github.com/hanwen/go-fuse/v2/fuse"
)

// MountOptions configures the lowlevel FUSE session.
type MountOptions struct {
	MountPoint string
	ReadOnly   bool
	AllowOther bool
}

// Session wraps a running fuse.Server so the daemon can start and tear down
// a mount without reaching into go-fuse directly.
type Session struct {
	server *fuse.Server
}

// Mount starts serving adapter at opts.MountPoint and returns once the
// kernel handshake completes; serving continues on a background goroutine
// until Unmount is called.
func Mount(adapter *Adapter, opts MountOptions) (*Session, error) {
	mountOpts := &fuse.MountOptions{
		AllowOther: opts.AllowOther,
		Name:       "vaulthalla",
		FsName:     "vaulthalla",
	}
	server, err := fuse.NewServer(adapter, opts.MountPoint, mountOpts)
	if err != nil {
		return nil, err
	}
	go server.Serve()
	server.WaitMount()
	return &Session{server: server}, nil
}

// Unmount tears the session down.
func (s *Session) Unmount() error {
	return s.server.Unmount()
}
