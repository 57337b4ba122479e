//go:build !linux

package device

import "syscall"

// Result codes returned by the kernel driver, using the Linux numbering.
const (
	EPERM     = syscall.Errno(0x1)
	ENOENT    = syscall.Errno(0x2)
	ENOMEM    = syscall.Errno(0xc)
	EFAULT    = syscall.Errno(0xe)
	ENODEV    = syscall.Errno(0x13)
	EINVAL    = syscall.Errno(0x16)
	ENODATA   = syscall.Errno(0x3d)
	ETIME     = syscall.Errno(0x3e)
	ECANCELED = syscall.Errno(0x7d)
	EHWPOISON = syscall.Errno(0x85)
)
