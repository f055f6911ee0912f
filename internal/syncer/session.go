package syncer

import (
	"context"
	"time"
)

// Folder is one entry of a folder listing.
type Folder struct {
	Name       string
	Delimiter  string // empty for a flat namespace
	Attributes []string
}

// FolderStatus is what selecting a folder reports.
type FolderStatus struct {
	Name           string
	Flags          []string
	PermanentFlags []string
	Messages       uint32
}

// Criteria narrows a message search within the selected folder.
type Criteria struct {
	WithoutFlags []string
}

// NotDeleted matches every message not flagged \Deleted.
var NotDeleted = Criteria{WithoutFlags: []string{DeletedFlag}}

// FetchItem selects which parts of a message a fetch returns.
type FetchItem uint8

const (
	FetchKey          FetchItem = 1 << iota // Message-ID and Date header fields
	FetchSize                               // RFC822.SIZE
	FetchFlags                              // FLAGS
	FetchInternalDate                       // INTERNALDATE
	FetchBody                               // the full raw message
)

// Has reports whether all items in o are requested.
func (i FetchItem) Has(o FetchItem) bool { return i&o == o }

// Message carries the fetched parts of one message. Only the fields asked for
// are populated.
type Message struct {
	UID          uint32
	Header       []byte
	Size         int64
	Flags        []string
	InternalDate time.Time
	Body         []byte
}

// Session is one authenticated connection to a mailbox server. Calls are
// issued strictly one at a time.
type Session interface {
	ListFolders(ctx context.Context) ([]Folder, error)
	SelectFolder(ctx context.Context, name string, readOnly bool) (*FolderStatus, error)
	CreateFolder(ctx context.Context, name string) error
	Search(ctx context.Context, criteria Criteria) ([]uint32, error)
	Fetch(ctx context.Context, uids []uint32, items FetchItem) (map[uint32]*Message, error)
	Append(ctx context.Context, folder string, raw []byte, flags []string, date time.Time) error
	Close() error
}

// Connector opens a Session.
type Connector func(ctx context.Context) (Session, error)
