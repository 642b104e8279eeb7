package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/marmos91/gfapi/pkg/config"
	"github.com/marmos91/gfapi/pkg/gfapi"
	"github.com/marmos91/gfapi/pkg/native"
	"github.com/marmos91/gfapi/pkg/probe"
)

// env is what a command runs with. client is nil for offline commands.
type env struct {
	ctx    context.Context
	cfg    *config.Config
	client *gfapi.Client
	stdin  io.Reader
	stdout io.Writer
}

type command struct {
	name    string
	usage   string
	summary string

	// offline commands do not connect to the volume
	offline bool

	run func(e *env, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{name: "stat", usage: "PATH...", summary: "Show file metadata", run: cmdStat},
		{name: "ls", usage: "[-a] [-l] [PATH]", summary: "List a directory", run: cmdLs},
		{name: "cat", usage: "PATH...", summary: "Print file contents", run: cmdCat},
		{name: "put", usage: "LOCAL|- REMOTE", summary: "Upload a file (- reads stdin)", run: cmdPut},
		{name: "rm", usage: "PATH...", summary: "Remove files", run: cmdRm},
		{name: "rmdir", usage: "PATH...", summary: "Remove empty directories", run: cmdRmdir},
		{name: "mkdir", usage: "[-p] [-m MODE] PATH...", summary: "Create directories", run: cmdMkdir},
		{name: "mv", usage: "OLD NEW", summary: "Rename an entry", run: cmdMv},
		{name: "ln", usage: "[-s] TARGET LINK", summary: "Create a hard or symbolic link", run: cmdLn},
		{name: "getfattr", usage: "[-n NAME] [-h] PATH", summary: "Show extended attributes", run: cmdGetfattr},
		{name: "setfattr", usage: "[-h] (-n NAME -v VALUE | -x NAME) PATH", summary: "Set or remove an extended attribute", run: cmdSetfattr},
		{name: "probe", usage: "", summary: "Check that the volfile server answers", offline: true, run: cmdProbe},
		{name: "init", usage: "", summary: "Write a default config file", offline: true},
	}
}

func lookup(name string) (command, bool) {
	i := slices.IndexFunc(commands, func(c command) bool { return c.name == name })
	if i < 0 {
		return command{}, false
	}
	return commands[i], true
}

// parse parses per-command flags and checks the positional argument count.
func parse(fs *pflag.FlagSet, args []string, minArgs, maxArgs int) ([]string, error) {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	rest := fs.Args()
	if len(rest) < minArgs || (maxArgs >= 0 && len(rest) > maxArgs) {
		return nil, fmt.Errorf("%w: wrong number of arguments", errUsage)
	}
	return rest, nil
}

func newFlags(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

// ============================================================================
// Metadata
// ============================================================================

func cmdStat(e *env, args []string) error {
	paths, err := parse(newFlags("stat"), args, 1, -1)
	if err != nil {
		return err
	}

	for _, p := range paths {
		st, err := e.client.Lstat(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "  File: %s\n", p)
		fmt.Fprintf(e.stdout, "  Size: %-12d Blocks: %-8d IO Block: %-6d %s\n",
			st.Size, st.Blocks, st.Blksize, typeName(st.Mode))
		fmt.Fprintf(e.stdout, " Inode: %-12d Links: %d\n", st.Ino, uint64(st.Nlink))
		fmt.Fprintf(e.stdout, "Access: (%04o/%s)  Uid: %d  Gid: %d\n",
			st.Mode&0o7777, fileMode(st.Mode), st.Uid, st.Gid)
		fmt.Fprintf(e.stdout, "Modify: %s\n", formatTime(st.Mtim))
		fmt.Fprintf(e.stdout, "Change: %s\n", formatTime(st.Ctim))
	}
	return nil
}

func cmdLs(e *env, args []string) error {
	fs := newFlags("ls")
	all := fs.BoolP("all", "a", false, "include . and ..")
	long := fs.BoolP("long", "l", false, "long listing")
	rest, err := parse(fs, args, 0, 1)
	if err != nil {
		return err
	}

	dir := "."
	if len(rest) == 1 {
		dir = rest[0]
	}

	d, err := e.client.OpenDir(dir)
	if err != nil {
		return err
	}
	entries, err := d.ReadAll()
	if err != nil {
		return err
	}

	slices.SortFunc(entries, func(a, b gfapi.DirEntry) int { return strings.Compare(a.Name, b.Name) })
	for _, ent := range entries {
		if !*all && (ent.Name == "." || ent.Name == "..") {
			continue
		}
		if !*long {
			fmt.Fprintf(e.stdout, "%s%s\n", ent.Name, typeSuffix(ent.Type))
			continue
		}

		st, err := e.client.Lstat(path.Join(dir, ent.Name))
		if err != nil {
			return err
		}
		name := ent.Name
		if st.Mode&unix.S_IFMT == unix.S_IFLNK {
			if target, err := e.client.Readlink(path.Join(dir, ent.Name)); err == nil {
				name += " -> " + target
			}
		}
		fmt.Fprintf(e.stdout, "%s %3d %5d %5d %10d %s %s\n",
			fileMode(st.Mode), uint64(st.Nlink), st.Uid, st.Gid, st.Size,
			formatTime(st.Mtim), name)
	}
	return nil
}

// ============================================================================
// Data
// ============================================================================

func cmdCat(e *env, args []string) error {
	paths, err := parse(newFlags("cat"), args, 1, -1)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if _, err := e.client.GetFile(p, e.stdout); err != nil {
			return err
		}
	}
	return nil
}

func cmdPut(e *env, args []string) error {
	fs := newFlags("put")
	mode := fs.Uint32P("mode", "m", 0o644, "mode of a created file")
	rest, err := parse(fs, args, 2, 2)
	if err != nil {
		return err
	}

	src := e.stdin
	if rest[0] != "-" {
		f, err := os.Open(rest[0])
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}

	n, err := e.client.PutFile(rest[1], src, *mode)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%d bytes written to %s\n", n, rest[1])
	return nil
}

// ============================================================================
// Namespace
// ============================================================================

func cmdRm(e *env, args []string) error {
	paths, err := parse(newFlags("rm"), args, 1, -1)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := e.client.Unlink(p); err != nil {
			return err
		}
	}
	return nil
}

func cmdRmdir(e *env, args []string) error {
	paths, err := parse(newFlags("rmdir"), args, 1, -1)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := e.client.Rmdir(p); err != nil {
			return err
		}
	}
	return nil
}

func cmdMkdir(e *env, args []string) error {
	fs := newFlags("mkdir")
	parents := fs.BoolP("parents", "p", false, "create missing parents, no error if existing")
	mode := fs.Uint32P("mode", "m", 0o755, "permission bits")
	paths, err := parse(fs, args, 1, -1)
	if err != nil {
		return err
	}

	for _, p := range paths {
		if !*parents {
			if err := e.client.Mkdir(p, *mode); err != nil {
				return err
			}
			continue
		}
		if err := mkdirAll(e.client, p, *mode); err != nil {
			return err
		}
	}
	return nil
}

// mkdirAll creates p and its missing parents, one component at a time.
func mkdirAll(c *gfapi.Client, p string, mode uint32) error {
	prefix := ""
	if path.IsAbs(p) {
		prefix = "/"
	}
	for part := range strings.SplitSeq(strings.Trim(p, "/"), "/") {
		if part == "" {
			continue
		}
		prefix = path.Join(prefix, part)
		err := c.Mkdir(prefix, mode)
		if err == nil {
			continue
		}
		if !errors.Is(err, unix.EEXIST) {
			return err
		}
		st, serr := c.Stat(prefix)
		if serr != nil {
			return serr
		}
		if st.Mode&unix.S_IFMT != unix.S_IFDIR {
			return err
		}
	}
	return nil
}

func cmdMv(e *env, args []string) error {
	rest, err := parse(newFlags("mv"), args, 2, 2)
	if err != nil {
		return err
	}
	return e.client.Rename(rest[0], rest[1])
}

func cmdLn(e *env, args []string) error {
	fs := newFlags("ln")
	symbolic := fs.BoolP("symbolic", "s", false, "create a symbolic link")
	rest, err := parse(fs, args, 2, 2)
	if err != nil {
		return err
	}
	if *symbolic {
		return e.client.Symlink(rest[0], rest[1])
	}
	return e.client.Link(rest[0], rest[1])
}

// ============================================================================
// Extended Attributes
// ============================================================================

func cmdGetfattr(e *env, args []string) error {
	fs := newFlags("getfattr")
	name := fs.StringP("name", "n", "", "show only this attribute")
	noDeref := fs.BoolP("no-dereference", "h", false, "do not follow a terminal symlink")
	rest, err := parse(fs, args, 1, 1)
	if err != nil {
		return err
	}
	p := rest[0]

	get, list := e.client.GetxattrBytes, e.client.Listxattr
	if *noDeref {
		get, list = e.client.LgetxattrBytes, e.client.Llistxattr
	}

	names := []string{*name}
	if *name == "" {
		if names, err = list(p); err != nil {
			return err
		}
		slices.Sort(names)
	}

	fmt.Fprintf(e.stdout, "# file: %s\n", p)
	for _, n := range names {
		value, err := get(p, n)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s=%q\n", n, value)
	}
	return nil
}

func cmdSetfattr(e *env, args []string) error {
	fs := newFlags("setfattr")
	name := fs.StringP("name", "n", "", "attribute to set")
	value := fs.StringP("value", "v", "", "value to set")
	remove := fs.StringP("remove", "x", "", "attribute to remove")
	noDeref := fs.BoolP("no-dereference", "h", false, "do not follow a terminal symlink")
	rest, err := parse(fs, args, 1, 1)
	if err != nil {
		return err
	}
	p := rest[0]

	switch {
	case *remove != "" && *name == "":
		if *noDeref {
			return e.client.Lremovexattr(p, *remove)
		}
		return e.client.Removexattr(p, *remove)
	case *name != "" && *remove == "":
		if *noDeref {
			return e.client.Lsetxattr(p, *name, []byte(*value), 0)
		}
		return e.client.Setxattr(p, *name, []byte(*value), 0)
	default:
		return fmt.Errorf("%w: exactly one of -n or -x is required", errUsage)
	}
}

// ============================================================================
// Connectivity
// ============================================================================

func cmdProbe(e *env, args []string) error {
	if _, err := parse(newFlags("probe"), args, 0, 0); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.Probe.Timeout)
	defer cancel()

	start := time.Now()
	server, port := e.cfg.Volume.Server, int(e.cfg.Volume.Port)
	if err := probe.Probe(ctx, server, port); err != nil {
		return fmt.Errorf("%s:%d: %w (%s)", server, port, err, probe.Errno(err))
	}
	fmt.Fprintf(e.stdout, "%s:%d: glusterd answered in %s\n", server, port, time.Since(start).Round(time.Millisecond))
	return nil
}

// ============================================================================
// Formatting
// ============================================================================

func typeName(mode uint32) string {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return "regular file"
	case unix.S_IFDIR:
		return "directory"
	case unix.S_IFLNK:
		return "symbolic link"
	case unix.S_IFIFO:
		return "fifo"
	case unix.S_IFSOCK:
		return "socket"
	case unix.S_IFCHR:
		return "character special file"
	case unix.S_IFBLK:
		return "block special file"
	default:
		return "unknown"
	}
}

func typeSuffix(dt uint8) string {
	switch dt {
	case native.DT_DIR:
		return "/"
	case native.DT_LNK:
		return "@"
	default:
		return ""
	}
}

// fileMode renders mode the way ls does.
func fileMode(mode uint32) string {
	fm := os.FileMode(mode & 0o777)
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		fm |= os.ModeDir
	case unix.S_IFLNK:
		fm |= os.ModeSymlink
	case unix.S_IFIFO:
		fm |= os.ModeNamedPipe
	case unix.S_IFSOCK:
		fm |= os.ModeSocket
	case unix.S_IFCHR:
		fm |= os.ModeDevice | os.ModeCharDevice
	case unix.S_IFBLK:
		fm |= os.ModeDevice
	}
	return fm.String()
}

func formatTime(ts unix.Timespec) string {
	sec, nsec := ts.Unix()
	return time.Unix(sec, nsec).Format("2006-01-02 15:04:05")
}
