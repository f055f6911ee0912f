package syncer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-message/textproto"
)

// HeaderBatchSize bounds the number of messages per header fetch.
const HeaderBatchSize = 1000

// MessageKey identifies a message across servers by its Message-ID and Date
// header values. Messages without a Message-ID, or distinct messages sharing
// one, collide; that is accepted.
type MessageKey struct {
	MessageID string
	Date      string
}

// KeySet is the set of keys present in a folder.
type KeySet map[MessageKey]struct{}

// Has reports whether k is in the set.
func (s KeySet) Has(k MessageKey) bool {
	_, ok := s[k]
	return ok
}

// ParseKey extracts the key from a raw header block. A block that does not
// parse as a header falls back to its trimmed raw text as the Message-ID.
func ParseKey(header []byte) MessageKey {
	buf := make([]byte, 0, len(header)+4)
	buf = append(buf, header...)
	buf = append(buf, "\r\n\r\n"...)
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(buf)))
	if err != nil {
		return MessageKey{MessageID: strings.TrimSpace(string(header))}
	}
	return MessageKey{
		MessageID: h.Get("Message-Id"),
		Date:      h.Get("Date"),
	}
}

// Transfer is a source message scheduled for copying.
type Transfer struct {
	UID  uint32
	Size int64
}

// Deduplicate returns, in source order, the source messages whose key is not
// in dest, along with the sum of their sizes. Source messages must carry their
// key header and size.
func Deduplicate(dest KeySet, source []*Message) ([]Transfer, int64) {
	var plan []Transfer
	var total int64
	for _, msg := range source {
		if dest.Has(ParseKey(msg.Header)) {
			continue
		}
		plan = append(plan, Transfer{UID: msg.UID, Size: msg.Size})
		total += msg.Size
	}
	return plan, total
}

// fetchInBatches fetches items for uids, at most HeaderBatchSize per request,
// and returns the messages in uids order.
func fetchInBatches(ctx context.Context, s Session, uids []uint32, items FetchItem) ([]*Message, error) {
	out := make([]*Message, 0, len(uids))
	for start := 0; start < len(uids); start += HeaderBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + HeaderBatchSize
		if end > len(uids) {
			end = len(uids)
		}
		batch := uids[start:end]
		msgs, err := s.Fetch(ctx, batch, items)
		if err != nil {
			return nil, fmt.Errorf("fetch headers: %w", err)
		}
		for _, uid := range batch {
			if msg, ok := msgs[uid]; ok {
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

// collectKeys builds the key set of the undeleted messages in the selected
// folder.
func collectKeys(ctx context.Context, s Session) (KeySet, error) {
	uids, err := s.Search(ctx, NotDeleted)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	msgs, err := fetchInBatches(ctx, s, uids, FetchKey)
	if err != nil {
		return nil, err
	}
	keys := make(KeySet, len(msgs))
	for _, msg := range msgs {
		keys[ParseKey(msg.Header)] = struct{}{}
	}
	return keys, nil
}

// planTransfer lists the undeleted messages of the selected source folder
// that are missing from dest.
func planTransfer(ctx context.Context, s Session, dest KeySet) ([]Transfer, int64, error) {
	uids, err := s.Search(ctx, NotDeleted)
	if err != nil {
		return nil, 0, fmt.Errorf("search: %w", err)
	}
	msgs, err := fetchInBatches(ctx, s, uids, FetchKey|FetchSize)
	if err != nil {
		return nil, 0, err
	}
	plan, total := Deduplicate(dest, msgs)
	return plan, total, nil
}
