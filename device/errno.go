package device

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Code extracts the driver result code carried by err. It returns 0 for a nil
// error and EINVAL for errors that carry no code.
func Code(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	return EINVAL
}

var codeNames = map[syscall.Errno]string{
	EPERM:     "EPERM",
	ENOENT:    "ENOENT",
	ENOMEM:    "ENOMEM",
	EFAULT:    "EFAULT",
	ENODEV:    "ENODEV",
	EINVAL:    "EINVAL",
	ENODATA:   "ENODATA",
	ETIME:     "ETIME",
	ECANCELED: "ECANCELED",
	EHWPOISON: "EHWPOISON",
}

// CodeName formats a result code the way the driver headers spell it.
func CodeName(err error) string {
	code := Code(err)
	if code == 0 {
		return "0"
	}

	if name, ok := codeNames[code]; ok {
		return "-" + name
	}

	return err.Error()
}

// ParseCode converts a name such as "ECANCELED" or "-ECANCELED" into a
// result code.
func ParseCode(s string) (syscall.Errno, error) {
	name := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "-")
	if name == "0" {
		return 0, nil
	}

	for code, n := range codeNames {
		if n == name {
			return code, nil
		}
	}

	return 0, fmt.Errorf("unknown result code %q", s)
}
