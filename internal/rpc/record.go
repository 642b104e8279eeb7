package rpc

import (
	"encoding/binary"
	"fmt"
	"io"
)

type fragmentHeader struct {
	IsLast bool
	Length uint32
}

func readFragmentHeader(r io.Reader) (fragmentHeader, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fragmentHeader{}, err
	}

	header := binary.BigEndian.Uint32(buf[:])
	return fragmentHeader{
		IsLast: header&lastFragment != 0,
		Length: header & fragmentMask,
	}, nil
}

// ReadRecord reads one record, reassembling its fragments. A record larger
// than MaxRecordSize is rejected.
func ReadRecord(r io.Reader) ([]byte, error) {
	var record []byte
	for {
		header, err := readFragmentHeader(r)
		if err != nil {
			if len(record) > 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if len(record)+int(header.Length) > MaxRecordSize {
			return nil, fmt.Errorf("rpc record exceeds %d bytes", MaxRecordSize)
		}

		start := len(record)
		record = append(record, make([]byte, header.Length)...)
		if _, err := io.ReadFull(r, record[start:]); err != nil {
			return nil, fmt.Errorf("read fragment: %w", err)
		}
		if header.IsLast {
			return record, nil
		}
	}
}

// WriteRecord writes data as a single-fragment record.
func WriteRecord(w io.Writer, data []byte) error {
	if len(data) > fragmentMask {
		return fmt.Errorf("rpc record of %d bytes is too large", len(data))
	}

	msg := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(msg, lastFragment|uint32(len(data)))
	copy(msg[4:], data)

	_, err := w.Write(msg)
	return err
}
