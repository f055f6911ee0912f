package mboxsrc

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/pepperpark/imapmover/internal/syncer"
)

const sample = `From alice@example.org Mon Jan  2 15:04:05 2006
Message-ID: <1@example.org>
Date: Mon, 2 Jan 2006 15:04:05 +0000
Subject: first
Status: RO

one

From bob@example.org Tue Jan  3 15:04:05 2006
Message-ID: <2@example.org>
Date: Tue, 3 Jan 2006 15:04:05 +0000
Subject: second
X-Status: D

two

From carol@example.org Wed Jan  4 15:04:05 2006
Message-ID: <3@example.org>
Date: Wed, 4 Jan 2006 15:04:05 +0000
Subject: third
X-Status: AF

three
`

func openSample(t *testing.T) *Session {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.mbox")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestListAndSelect(t *testing.T) {
	ctx := context.Background()
	s := openSample(t)
	folders, err := s.ListFolders(ctx)
	if err != nil || len(folders) != 1 || folders[0].Name != DefaultFolder {
		t.Fatalf("ListFolders = %+v, %v", folders, err)
	}
	st, err := s.SelectFolder(ctx, DefaultFolder, true)
	if err != nil {
		t.Fatalf("SelectFolder: %v", err)
	}
	if st.Messages != 3 {
		t.Fatalf("Messages = %d, want 3", st.Messages)
	}
	if _, err := s.SelectFolder(ctx, "Other", true); err == nil {
		t.Fatal("expected error selecting unknown folder")
	}
}

func TestSearchSkipsDeleted(t *testing.T) {
	s := openSample(t)
	uids, err := s.Search(context.Background(), syncer.NotDeleted)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if want := []uint32{1, 3}; !reflect.DeepEqual(uids, want) {
		t.Fatalf("Search = %v, want %v", uids, want)
	}
}

func TestFetch(t *testing.T) {
	s := openSample(t)
	msgs, err := s.Fetch(context.Background(), []uint32{1, 3}, syncer.FetchKey|syncer.FetchSize|syncer.FetchFlags|syncer.FetchInternalDate)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if key := syncer.ParseKey(msgs[1].Header); key.MessageID != "<1@example.org>" {
		t.Fatalf("key = %+v", key)
	}
	if !reflect.DeepEqual(msgs[1].Flags, []string{`\Seen`}) {
		t.Fatalf("flags = %v", msgs[1].Flags)
	}
	if !reflect.DeepEqual(msgs[3].Flags, []string{`\Answered`, `\Flagged`}) {
		t.Fatalf("flags = %v", msgs[3].Flags)
	}
	if want := time.Date(2006, 1, 4, 15, 4, 5, 0, time.UTC); !msgs[3].InternalDate.Equal(want) {
		t.Fatalf("date = %v, want %v", msgs[3].InternalDate, want)
	}
	if msgs[1].Size == 0 || msgs[1].Body != nil {
		t.Fatalf("message = %+v", msgs[1])
	}
}

func TestFetchBodiesInAnyOrder(t *testing.T) {
	s := openSample(t)
	for _, order := range [][]uint32{{1, 3}, {3}, {1}, {2, 3}} {
		msgs, err := s.Fetch(context.Background(), order, syncer.FetchBody)
		if err != nil {
			t.Fatalf("Fetch %v: %v", order, err)
		}
		for _, uid := range order {
			want := []byte("<" + string(rune('0'+uid)) + "@example.org>")
			if !bytes.Contains(msgs[uid].Body, want) {
				t.Fatalf("uid %d body = %q", uid, msgs[uid].Body)
			}
		}
	}
}

func TestReadOnly(t *testing.T) {
	s := openSample(t)
	if err := s.CreateFolder(context.Background(), "X"); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("CreateFolder err = %v", err)
	}
	if err := s.Append(context.Background(), DefaultFolder, nil, nil, time.Time{}); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("Append err = %v", err)
	}
}

func TestStatusFlags(t *testing.T) {
	if got := statusFlags("RO" + "FAR"); !reflect.DeepEqual(got, []string{`\Seen`, `\Flagged`, `\Answered`}) {
		t.Fatalf("statusFlags = %v", got)
	}
}
