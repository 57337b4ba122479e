// Package leakcheck reads and resets the kernel memory leak detector so that
// runs can tell if creating and destroying lanes leaked kernel objects.
package leakcheck

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultPath is where debugfs exposes kmemleak.
const DefaultPath = "/sys/kernel/debug/kmemleak"

// ResultFile is the name of the report file written into a result
// directory.
const ResultFile = "kmemleak.txt"

// ErrUnavailable is returned when kmemleak cannot be opened, usually because
// the kernel lacks it or debugfs is not mounted.
var ErrUnavailable = errors.New("kmemleak is not available")

// Checker drives one kmemleak file.
type Checker struct {
	path     string
	commands string
}

// New checks that the kmemleak file at path can be read.
func New(path string) (*Checker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	f.Close()

	return &Checker{path: path, commands: path}, nil
}

// Path returns the kmemleak file.
func (c *Checker) Path() string {
	return c.path
}

func (c *Checker) cmd(cmd string) error {
	f, err := os.OpenFile(c.commands, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write([]byte(cmd))
	if err != nil {
		return fmt.Errorf("kmemleak %s: %w", cmd, err)
	}

	return nil
}

// Clear forgets every leak reported so far. With twice set it scans and
// clears again, so objects found by a scan that was already running are
// dropped too.
func (c *Checker) Clear(twice bool) error {
	if err := c.cmd("clear"); err != nil {
		return err
	}

	if !twice {
		return nil
	}

	if _, err := c.Scan(); err != nil {
		return err
	}

	return c.cmd("clear")
}

// Scan triggers a scan and tells if it found leaks. The kernel only scans
// when the file is read, so one byte is read.
func (c *Checker) Scan() (bool, error) {
	if err := c.cmd("scan"); err != nil {
		return false, err
	}

	return c.found()
}

func (c *Checker) found() (bool, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	var buf [1]byte

	n, err := f.Read(buf[:])
	if err != nil && err != io.EOF {
		return false, err
	}

	return n == 1, nil
}

// NoLeak scans and returns the report when leaks were found.
func (c *Checker) NoLeak() (bool, string, error) {
	leaks, err := c.Scan()
	if err != nil || !leaks {
		return !leaks, "", err
	}

	report, err := os.ReadFile(c.path)
	if err != nil {
		return false, "", err
	}

	return false, string(report), nil
}

// Report scans and, if leaks were found, appends them to ResultFile in dir
// under a header naming lastTest. An empty lastTest marks leaks found before
// any test ran. With each set the leaks are cleared afterwards so that the
// next report only holds the next test's leaks.
func (c *Checker) Report(dir, lastTest string, each bool) error {
	leaks, err := c.Scan()
	if err != nil {
		return err
	}

	if leaks {
		if err := c.appendTo(dir, lastTest, each); err != nil {
			return err
		}
	}

	if each {
		return c.cmd("clear")
	}

	return nil
}

func (c *Checker) appendTo(dir, lastTest string, each bool) error {
	src, err := os.Open(c.path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(filepath.Join(dir, ResultFile),
		os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return err
	}
	defer dst.Close()

	header := "kmemleaks found after running all tests\n"
	if each {
		if lastTest == "" {
			header = "kmemleaks found before running any test\n\n"
		} else {
			header = fmt.Sprintf("\n\nkmemleaks found after running %s:\n",
				lastTest)
		}
	}

	if _, err := io.WriteString(dst, header); err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}

	return dst.Sync()
}
