package syncer

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"
)

type fakeMsg struct {
	uid     uint32
	raw     []byte
	flags   []string
	date    time.Time
	deleted bool
}

func (m *fakeMsg) header() []byte {
	if i := bytes.Index(m.raw, []byte("\r\n\r\n")); i >= 0 {
		return m.raw[:i+2]
	}
	return m.raw
}

type fakeFolder struct {
	attrs   []string
	flags   []string
	perm    []string
	msgs    []*fakeMsg
	nextUID uint32
}

func (f *fakeFolder) add(m *fakeMsg) {
	f.nextUID++
	m.uid = f.nextUID
	f.msgs = append(f.msgs, m)
}

// fakeSession is an in-memory mailbox server.
type fakeSession struct {
	sep      string
	folders  map[string]*fakeFolder
	selected string

	creates  []string
	appended []appendCall
	fetches  [][]uint32
	selects  []string
	closed   bool
	failOn   string
}

type appendCall struct {
	folder string
	flags  []string
}

func newFakeSession(sep string) *fakeSession {
	return &fakeSession{sep: sep, folders: map[string]*fakeFolder{}}
}

func (s *fakeSession) folder(name string, attrs ...string) *fakeFolder {
	f, ok := s.folders[name]
	if !ok {
		f = &fakeFolder{attrs: attrs, perm: []string{`\Seen`, `\Answered`, `\Flagged`, `\Deleted`, `\Draft`}}
		s.folders[name] = f
	}
	return f
}

func rawMessage(id, date, text string) []byte {
	return []byte(fmt.Sprintf("Message-ID: %s\r\nDate: %s\r\nSubject: test\r\n\r\n%s\r\n", id, date, text))
}

func (s *fakeSession) put(folder, id, date, text string, flags ...string) *fakeMsg {
	m := &fakeMsg{raw: rawMessage(id, date, text), flags: flags, date: time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)}
	s.folder(folder).add(m)
	return m
}

func (s *fakeSession) count(folder string) int {
	f, ok := s.folders[folder]
	if !ok {
		return -1
	}
	return len(f.msgs)
}

func (s *fakeSession) ListFolders(ctx context.Context) ([]Folder, error) {
	if s.failOn == "list" {
		return nil, fmt.Errorf("list failed")
	}
	names := make([]string, 0, len(s.folders))
	for n := range s.folders {
		names = append(names, n)
	}
	// Listing order is unspecified; reverse it to prove callers sort.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	out := make([]Folder, 0, len(names))
	for _, n := range names {
		out = append(out, Folder{Name: n, Delimiter: s.sep, Attributes: s.folders[n].attrs})
	}
	return out, nil
}

func (s *fakeSession) SelectFolder(ctx context.Context, name string, readOnly bool) (*FolderStatus, error) {
	f, ok := s.folders[name]
	if !ok || s.failOn == "select:"+name {
		return nil, fmt.Errorf("no such folder %q", name)
	}
	s.selected = name
	s.selects = append(s.selects, name)
	return &FolderStatus{Name: name, Flags: f.flags, PermanentFlags: f.perm, Messages: uint32(len(f.msgs))}, nil
}

func (s *fakeSession) CreateFolder(ctx context.Context, name string) error {
	if _, ok := s.folders[name]; ok {
		return fmt.Errorf("folder %q exists", name)
	}
	s.creates = append(s.creates, name)
	s.folder(name)
	return nil
}

func (s *fakeSession) Search(ctx context.Context, criteria Criteria) ([]uint32, error) {
	f := s.folders[s.selected]
	if f == nil {
		return nil, fmt.Errorf("no folder selected")
	}
	skipDeleted := hasAttribute(criteria.WithoutFlags, DeletedFlag)
	var uids []uint32
	for _, m := range f.msgs {
		if skipDeleted && m.deleted {
			continue
		}
		uids = append(uids, m.uid)
	}
	return uids, nil
}

func (s *fakeSession) Fetch(ctx context.Context, uids []uint32, items FetchItem) (map[uint32]*Message, error) {
	f := s.folders[s.selected]
	if f == nil {
		return nil, fmt.Errorf("no folder selected")
	}
	s.fetches = append(s.fetches, append([]uint32(nil), uids...))
	want := make(map[uint32]bool, len(uids))
	for _, u := range uids {
		want[u] = true
	}
	out := make(map[uint32]*Message)
	for _, m := range f.msgs {
		if !want[m.uid] {
			continue
		}
		msg := &Message{UID: m.uid}
		if items.Has(FetchKey) {
			msg.Header = m.header()
		}
		if items.Has(FetchSize) {
			msg.Size = int64(len(m.raw))
		}
		if items.Has(FetchFlags) {
			msg.Flags = m.flags
		}
		if items.Has(FetchInternalDate) {
			msg.InternalDate = m.date
		}
		if items.Has(FetchBody) {
			msg.Body = m.raw
		}
		out[m.uid] = msg
	}
	return out, nil
}

func (s *fakeSession) Append(ctx context.Context, folder string, raw []byte, flags []string, date time.Time) error {
	f, ok := s.folders[folder]
	if !ok {
		return fmt.Errorf("no such folder %q", folder)
	}
	s.appended = append(s.appended, appendCall{folder: folder, flags: flags})
	f.add(&fakeMsg{raw: raw, flags: flags, date: date})
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func connectorFor(s *fakeSession) Connector {
	return func(context.Context) (Session, error) { return s, nil }
}

// recordingProgress keeps the reports it receives.
type recordingProgress struct {
	name    string
	descs   []string
	postfix []string
	resets  []int64
	updated int64
	closed  bool
}

func (p *recordingProgress) SetDescription(d string) { p.descs = append(p.descs, d) }
func (p *recordingProgress) Reset(total int64)       { p.resets = append(p.resets, total) }
func (p *recordingProgress) Update(n int64)          { p.updated += n }
func (p *recordingProgress) SetPostfix(s string)     { p.postfix = append(p.postfix, s) }
func (p *recordingProgress) Close() error            { p.closed = true; return nil }

type progressRecorder struct {
	bars []*recordingProgress
}

func (r *progressRecorder) factory(desc string) Progress {
	p := &recordingProgress{name: desc}
	r.bars = append(r.bars, p)
	return p
}
