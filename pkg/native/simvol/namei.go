package simvol

import (
	"strings"

	"golang.org/x/sys/unix"
)

// Path resolution. Every function here runs with volumeData.mu held.

// splitPath returns the components of path, dropping empty and "."
// components.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	comps := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			comps = append(comps, p)
		}
	}
	return comps
}

// resolved is the outcome of a walk: the inode reached and its canonical
// absolute path.
type resolved struct {
	in   *Inode
	path []string
}

func (r resolved) String() string {
	return "/" + strings.Join(r.path, "/")
}

// walk resolves path from the directory cwd. Symlinks are followed in every
// intermediate component, and in the final one when follow is set or the
// path ends with a slash.
func (vd *volumeData) walk(cwd uint64, path string, follow bool) (resolved, error) {
	if path == "" {
		return resolved{}, unix.ENOENT
	}
	if len(path) >= unix.PathMax {
		return resolved{}, unix.ENAMETOOLONG
	}

	var stack []string
	cur := vd.inodes[RootIno]
	if path[0] != '/' {
		start, ok := vd.inodes[cwd]
		if !ok {
			return resolved{}, unix.ENOENT
		}
		p, err := vd.pathOf(start)
		if err != nil {
			return resolved{}, err
		}
		cur, stack = start, splitPath(p)
	}

	trailingSlash := strings.HasSuffix(path, "/")
	if trailingSlash {
		follow = true
	}

	comps := splitPath(path)
	hops := 0
	for len(comps) > 0 {
		name := comps[0]
		comps = comps[1:]

		if !cur.isDir() {
			return resolved{}, unix.ENOTDIR
		}
		if name == ".." {
			cur = vd.inodes[cur.Parent]
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}
		if len(name) > nameMax {
			return resolved{}, unix.ENAMETOOLONG
		}

		ino, ok := cur.lookUpChild(name)
		if !ok {
			return resolved{}, unix.ENOENT
		}
		next := vd.inodes[ino]

		if next.isSymlink() && (len(comps) > 0 || follow) {
			hops++
			if hops > maxSymlinkHops {
				return resolved{}, unix.ELOOP
			}
			if strings.HasPrefix(next.Target, "/") {
				cur, stack = vd.inodes[RootIno], nil
			}
			comps = append(splitPath(next.Target), comps...)
			continue
		}

		cur = next
		stack = append(stack, name)
	}

	if trailingSlash && !cur.isDir() {
		return resolved{}, unix.ENOTDIR
	}
	return resolved{in: cur, path: stack}, nil
}

// lookup resolves path to an inode.
func (vd *volumeData) lookup(cwd uint64, path string, follow bool) (*Inode, error) {
	r, err := vd.walk(cwd, path, follow)
	if err != nil {
		return nil, err
	}
	return r.in, nil
}

// walkParent resolves the directory that contains the final component of
// path and returns it with that component's name. The name is "" for the
// root itself.
func (vd *volumeData) walkParent(cwd uint64, path string) (*Inode, string, error) {
	if path == "" {
		return nil, "", unix.ENOENT
	}

	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return vd.inodes[RootIno], "", nil
	}

	dir, name := ".", trimmed
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		dir, name = trimmed[:i+1], trimmed[i+1:]
	}
	if len(name) > nameMax {
		return nil, "", unix.ENAMETOOLONG
	}

	parent, err := vd.lookup(cwd, dir, true)
	if err != nil {
		return nil, "", err
	}
	if !parent.isDir() {
		return nil, "", unix.ENOTDIR
	}
	return parent, name, nil
}

// isAncestor reports whether dir is anc or lies below it.
func (vd *volumeData) isAncestor(anc, dir *Inode) bool {
	for cur := dir; ; {
		if cur.Ino == anc.Ino {
			return true
		}
		if cur.Ino == RootIno {
			return false
		}
		cur = vd.inodes[cur.Parent]
	}
}
