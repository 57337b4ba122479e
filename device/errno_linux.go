//go:build linux

package device

import "golang.org/x/sys/unix"

// Result codes returned by the kernel driver.
const (
	EPERM     = unix.EPERM
	ENOENT    = unix.ENOENT
	ENOMEM    = unix.ENOMEM
	EFAULT    = unix.EFAULT
	ENODEV    = unix.ENODEV
	EINVAL    = unix.EINVAL
	ENODATA   = unix.ENODATA
	ETIME     = unix.ETIME
	ECANCELED = unix.ECANCELED
	EHWPOISON = unix.EHWPOISON
)
