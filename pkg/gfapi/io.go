package gfapi

import (
	"errors"
	"io"
	"os"
)

// Whole-file helpers built on Open, Create and the io adapters of File.

// copyBufferSize is the chunk used when streaming to and from the volume.
const copyBufferSize = 128 * 1024

// ReadFile returns the contents of the file at path.
func (c *Client) ReadFile(path string) ([]byte, error) {
	f, err := c.Open(path, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	size := copyBufferSize
	if st, err := f.Stat(); err == nil && st.Size > 0 && st.Size < 1<<30 {
		size = int(st.Size) + 1
	}

	data := make([]byte, 0, size)
	for {
		if len(data) == cap(data) {
			data = append(data, 0)[:len(data)]
		}
		n, err := f.Read(data[len(data):cap(data)])
		data = data[:len(data)+n]
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// WriteFile writes data to path, creating it with mode or truncating it.
func (c *Client) WriteFile(path string, data []byte, mode uint32) error {
	f, err := c.Create(path, os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// PutFile streams r into path, creating it with mode or truncating it. A
// failure of r is reported with ErrCodeIO.
func (c *Client) PutFile(path string, r io.Reader, mode uint32) (int64, error) {
	f, err := c.Create(path, os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, err
	}

	n, err := copyFile(f, r, path, "put")
	if err != nil {
		_ = f.Close()
		return n, err
	}
	return n, f.Close()
}

// GetFile streams the file at path into w. A failure of w is reported with
// ErrCodeIO.
func (c *Client) GetFile(path string, w io.Writer) (int64, error) {
	f, err := c.Open(path, os.O_RDONLY)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return copyFile(w, f, path, "get")
}

// copyFile copies src to dst, attributing each failure to its side: errors
// already reported by the client pass through, anything else came from the
// caller's reader or writer.
func copyFile(dst io.Writer, src io.Reader, path, op string) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var total int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			total += int64(nw)
			if werr != nil {
				return total, wrapIO(op, path, werr)
			}
			if nw < nr {
				return total, wrapIO(op, path, io.ErrShortWrite)
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, wrapIO(op, path, rerr)
		}
	}
}

func wrapIO(op, path string, err error) error {
	var ge *GlusterError
	if errors.As(err, &ge) {
		return err
	}
	return ioError(op, path, err)
}
