package imaputil

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/pepperpark/imapmover/internal/syncer"
)

var keySection = &imap.BodySectionName{
	BodyPartName: imap.BodyPartName{
		Specifier: imap.HeaderSpecifier,
		Fields:    []string{"MESSAGE-ID", "DATE"},
	},
	Peek: true,
}

var fullSection = &imap.BodySectionName{Peek: true}

// Session implements syncer.Session over a logged-in go-imap client.
type Session struct {
	c *client.Client
}

// NewSession wraps an authenticated client. Close logs it out.
func NewSession(c *client.Client) *Session {
	return &Session{c: c}
}

// Connector returns a syncer.Connector that dials and logs into info.
func Connector(info ServerInfo, tlsConfig *tls.Config) syncer.Connector {
	return func(ctx context.Context) (syncer.Session, error) {
		c, err := DialAndLogin(ctx, info, tlsConfig)
		if err != nil {
			return nil, err
		}
		return NewSession(c), nil
	}
}

// ListFolders returns every folder of the account.
func (s *Session) ListFolders(ctx context.Context) ([]syncer.Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan *imap.MailboxInfo, 32)
	done := make(chan error, 1)
	go func() {
		done <- s.c.List("", "*", ch)
	}()
	folders := []syncer.Folder{}
	for m := range ch {
		if m == nil {
			continue
		}
		folders = append(folders, syncer.Folder{Name: m.Name, Delimiter: m.Delimiter, Attributes: m.Attributes})
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return folders, nil
}

// SelectFolder selects a folder in read-only (EXAMINE) or read-write mode.
func (s *Session) SelectFolder(ctx context.Context, name string, readOnly bool) (*syncer.FolderStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := s.c.Select(name, readOnly)
	if err != nil {
		return nil, err
	}
	return &syncer.FolderStatus{
		Name:           st.Name,
		Flags:          st.Flags,
		PermanentFlags: st.PermanentFlags,
		Messages:       st.Messages,
	}, nil
}

func (s *Session) CreateFolder(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.c.Create(name)
}

// Search returns the UIDs matching criteria in the selected folder.
func (s *Session) Search(ctx context.Context, criteria syncer.Criteria) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := imap.NewSearchCriteria()
	c.WithoutFlags = criteria.WithoutFlags
	return s.c.UidSearch(c)
}

// Fetch retrieves the requested items for the given UIDs of the selected
// folder. UIDs the server does not return are absent from the result.
func (s *Session) Fetch(ctx context.Context, uids []uint32, items syncer.FetchItem) (map[uint32]*syncer.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[uint32]*syncer.Message, len(uids))
	if len(uids) == 0 {
		return out, nil
	}
	seq := new(imap.SeqSet)
	seq.AddNum(uids...)

	fetchItems := []imap.FetchItem{imap.FetchUid}
	if items.Has(syncer.FetchKey) {
		fetchItems = append(fetchItems, keySection.FetchItem())
	}
	if items.Has(syncer.FetchSize) {
		fetchItems = append(fetchItems, imap.FetchRFC822Size)
	}
	if items.Has(syncer.FetchFlags) {
		fetchItems = append(fetchItems, imap.FetchFlags)
	}
	if items.Has(syncer.FetchInternalDate) {
		fetchItems = append(fetchItems, imap.FetchInternalDate)
	}
	if items.Has(syncer.FetchBody) {
		fetchItems = append(fetchItems, fullSection.FetchItem())
	}

	msgs := make(chan *imap.Message, 64)
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(seq, fetchItems, msgs)
	}()

	// Keep draining after a read error so the fetch goroutine can finish.
	var readErr error
	for msg := range msgs {
		if msg == nil || readErr != nil {
			continue
		}
		m := &syncer.Message{
			UID:          msg.Uid,
			Size:         int64(msg.Size),
			Flags:        msg.Flags,
			InternalDate: msg.InternalDate,
		}
		// Only one body section is requested per fetch.
		for _, lit := range msg.Body {
			if lit == nil {
				continue
			}
			b, err := io.ReadAll(lit)
			if err != nil {
				readErr = fmt.Errorf("read UID %d: %w", msg.Uid, err)
				break
			}
			if items.Has(syncer.FetchBody) {
				m.Body = b
			} else {
				m.Header = b
			}
		}
		out[msg.Uid] = m
	}
	if err := <-done; err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	return out, nil
}

// Append stores a raw message in folder.
func (s *Session) Append(ctx context.Context, folder string, raw []byte, flags []string, date time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.c.Append(folder, flags, date, bytes.NewReader(raw))
}

// Close logs out and closes the connection.
func (s *Session) Close() error {
	return s.c.Logout()
}
