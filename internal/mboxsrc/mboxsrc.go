// Package mboxsrc exposes a local MBOX file as a read-only sync source.
package mboxsrc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/pepperpark/imapmover/internal/syncer"
)

// ErrReadOnly is returned by operations that would modify the file.
var ErrReadOnly = errors.New("mbox source is read-only")

// DefaultFolder is the folder name an MBOX file is listed under.
const DefaultFolder = "INBOX"

type entry struct {
	header []byte
	size   int64
	flags  []string
	date   time.Time
}

// Session serves one MBOX file as a single folder. Message UIDs are the
// 1-based positions of the messages in the file.
type Session struct {
	folder  string
	f       *os.File
	entries []entry

	// forward cursor for body reads
	r    *mbox.Reader
	next uint32
}

// Open indexes the MBOX file at path. An empty folder means DefaultFolder.
func Open(path, folder string) (*Session, error) {
	if folder == "" {
		folder = DefaultFolder
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	s := &Session{folder: folder, f: f}
	if err := s.index(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Connector returns a syncer.Connector that opens path.
func Connector(path, folder string) syncer.Connector {
	return func(ctx context.Context) (syncer.Session, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Open(path, folder)
	}
}

func (s *Session) index() error {
	r := mbox.NewReader(s.f)
	for {
		mr, err := r.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read mbox: %w", err)
		}
		raw, err := io.ReadAll(mr)
		if err != nil {
			return fmt.Errorf("read message %d: %w", len(s.entries)+1, err)
		}
		s.entries = append(s.entries, parseEntry(raw))
	}
	return s.rewind()
}

func (s *Session) rewind() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	s.r = mbox.NewReader(s.f)
	s.next = 1
	return nil
}

func parseEntry(raw []byte) entry {
	e := entry{header: headerBlock(raw), size: int64(len(raw))}
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(e.header)))
	if err != nil {
		return e
	}
	e.flags = statusFlags(h.Get("Status") + h.Get("X-Status"))
	mh := mail.Header{Header: message.Header{Header: h}}
	if t, err := mh.Date(); err == nil {
		e.date = t
	}
	return e
}

// headerBlock returns the header section of raw, including the blank line.
func headerBlock(raw []byte) []byte {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return raw[:i+4]
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return raw[:i+2]
	}
	return raw
}

// statusFlags maps the letters of the Status and X-Status headers written by
// mail user agents to IMAP flags.
func statusFlags(status string) []string {
	var flags []string
	seen := map[string]bool{}
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			flags = append(flags, f)
		}
	}
	for _, c := range status {
		switch c {
		case 'R':
			add(`\Seen`)
		case 'A':
			add(`\Answered`)
		case 'F':
			add(`\Flagged`)
		case 'D':
			add(syncer.DeletedFlag)
		case 'T':
			add(`\Draft`)
		}
	}
	return flags
}

func (s *Session) ListFolders(ctx context.Context) ([]syncer.Folder, error) {
	return []syncer.Folder{{Name: s.folder, Delimiter: "/"}}, nil
}

func (s *Session) SelectFolder(ctx context.Context, name string, readOnly bool) (*syncer.FolderStatus, error) {
	if name != s.folder {
		return nil, fmt.Errorf("no folder %q in mbox", name)
	}
	return &syncer.FolderStatus{
		Name:     s.folder,
		Flags:    []string{`\Seen`, `\Answered`, `\Flagged`, syncer.DeletedFlag, `\Draft`},
		Messages: uint32(len(s.entries)),
	}, nil
}

func (s *Session) CreateFolder(ctx context.Context, name string) error {
	return ErrReadOnly
}

func (s *Session) Search(ctx context.Context, criteria syncer.Criteria) ([]uint32, error) {
	var uids []uint32
	for i, e := range s.entries {
		if hasAny(e.flags, criteria.WithoutFlags) {
			continue
		}
		uids = append(uids, uint32(i+1))
	}
	return uids, nil
}

func hasAny(flags, of []string) bool {
	for _, f := range flags {
		for _, o := range of {
			if strings.EqualFold(f, o) {
				return true
			}
		}
	}
	return false
}

// Fetch returns the requested parts. Bodies are read with a forward cursor,
// so fetching in ascending UID order reads the file once.
func (s *Session) Fetch(ctx context.Context, uids []uint32, items syncer.FetchItem) (map[uint32]*syncer.Message, error) {
	out := make(map[uint32]*syncer.Message, len(uids))
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if uid == 0 || int(uid) > len(s.entries) {
			continue
		}
		e := s.entries[uid-1]
		msg := &syncer.Message{UID: uid}
		if items.Has(syncer.FetchKey) {
			msg.Header = e.header
		}
		if items.Has(syncer.FetchSize) {
			msg.Size = e.size
		}
		if items.Has(syncer.FetchFlags) {
			msg.Flags = e.flags
		}
		if items.Has(syncer.FetchInternalDate) {
			msg.InternalDate = e.date
		}
		if items.Has(syncer.FetchBody) {
			body, err := s.body(uid)
			if err != nil {
				return nil, err
			}
			msg.Body = body
		}
		out[uid] = msg
	}
	return out, nil
}

func (s *Session) body(uid uint32) ([]byte, error) {
	if uid < s.next {
		if err := s.rewind(); err != nil {
			return nil, err
		}
	}
	for {
		mr, err := s.r.NextMessage()
		if err != nil {
			return nil, fmt.Errorf("read message %d: %w", uid, err)
		}
		n := s.next
		s.next++
		if n == uid {
			return io.ReadAll(mr)
		}
	}
}

func (s *Session) Append(ctx context.Context, folder string, raw []byte, flags []string, date time.Time) error {
	return ErrReadOnly
}

func (s *Session) Close() error {
	return s.f.Close()
}
