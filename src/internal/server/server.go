package server

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"
	"github.com/pkg/errors"
	l "github.com/sirupsen/logrus"

	"github.com/mtpfs-project/gomtpfs/src/internal/config"
	"github.com/mtpfs-project/gomtpfs/src/internal/device"
	"github.com/mtpfs-project/gomtpfs/src/internal/fs"
	"github.com/mtpfs-project/gomtpfs/src/internal/tagenrich"
)

var log *l.Entry = l.WithFields(l.Fields{"srv": "server"})

// Run implements the main control loop: open the MTP device, build the
// translation-layer filesystem, mount it at mountpoint, and serve FUSE
// requests until an OS signal or a fatal mount error.
func Run(mountpoint, version string) (err error) {
	var cfg config.Cfg
	if cfg, err = config.Load(); err != nil {
		err = errors.Wrap(err, "cannot run gomtpfs")
		return
	}
	if err = cfg.Validate(); err != nil {
		err = errors.Wrap(err, "cannot run gomtpfs")
		return
	}

	// set up logging: no log entries possible before this statement!
	if err = setupLogging(cfg.LogDir, cfg.LogLevel); err != nil {
		err = errors.Wrap(err, "cannot run gomtpfs")
		return
	}

	log.Tracef("running gomtpfs %s ...", version)

	sess, err := device.Open(cfg.Device.Index, cfg.Device.OpenTimeout)
	if err != nil {
		err = errors.Wrap(err, "cannot open MTP device")
		return
	}
	defer sess.Close()

	filesystem := fs.New(sess, cfg.Cnt.StagingDir, cfg.Cnt.PlaylistDirName, cfg.Cnt.LostFoundName, cfg.Cnt.TagSeparator, tagenrich.Extract)

	pathNodeFs := pathfs.NewPathNodeFs(filesystem, nil)
	conn := nodefs.NewFileSystemConnector(pathNodeFs.Root(), nodefs.NewOptions())
	srv, err := fuse.NewServer(conn.RawFS(), mountpoint, &fuse.MountOptions{
		Name:   "gomtpfs",
		FsName: "gomtpfs",
	})
	if err != nil {
		err = errors.Wrapf(err, "cannot mount gomtpfs at %s", mountpoint)
		return
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-interrupt
		log.Tracef("signal received: %v", sig)
		log.Trace("unmounting ...")
		if uerr := srv.Unmount(); uerr != nil {
			log.Errorf("unmount failed: %v", uerr)
		}
	}()

	log.Tracef("serving at %s", mountpoint)
	srv.Serve()
	log.Trace("stopped")
	return nil
}
