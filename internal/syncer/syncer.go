package syncer

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
)

type Options struct {
	DryRun              bool
	Rules               []Rule          // ordered include/exclude folder filter
	SeparatorSubstitute string          // replaces destination separators inside source names
	MaxChunkBytes       int64           // target size of one bulk fetch
	Progress            ProgressFactory // nil reports nothing
	Verbose             bool
}

// FolderMapping ties a source folder to its destination path.
type FolderMapping struct {
	Source string
	Flags  []string
	Dest   string
}

// Summary describes what a run did, or in dry-run mode would have done.
type Summary struct {
	Folders         int
	FoldersCreated  int
	PlannedMessages int
	PlannedBytes    int64
	Appended        int
}

// Sync connects to both servers, replicates the source into the destination
// and closes both connections on return.
func Sync(ctx context.Context, src, dst Connector, opts Options) (*Summary, error) {
	newProgress := opts.Progress
	if newProgress == nil {
		newProgress = nopFactory
	}
	progress := newProgress("Connecting to source server")
	defer progress.Close()

	srcSession, err := src(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect source: %w", err)
	}
	defer srcSession.Close()

	progress.SetDescription("Connecting to destination server")
	dstSession, err := dst(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect destination: %w", err)
	}
	defer dstSession.Close()

	return NewMailboxSyncer(srcSession, dstSession, opts).run(ctx, progress)
}

// MailboxSyncer replicates folders and messages between two open sessions.
type MailboxSyncer struct {
	src, dst Session
	opts     Options
}

func NewMailboxSyncer(src, dst Session, opts Options) *MailboxSyncer {
	if opts.Progress == nil {
		opts.Progress = nopFactory
	}
	if opts.MaxChunkBytes <= 0 {
		opts.MaxChunkBytes = DefaultChunkBytes
	}
	return &MailboxSyncer{src: src, dst: dst, opts: opts}
}

// Run replicates every selected source folder. The sessions stay open.
func (m *MailboxSyncer) Run(ctx context.Context) (*Summary, error) {
	progress := m.opts.Progress("Starting")
	defer progress.Close()
	return m.run(ctx, progress)
}

func (m *MailboxSyncer) run(ctx context.Context, progress Progress) (*Summary, error) {
	sum := &Summary{}

	progress.SetDescription("Finding source folders")
	srcFolders, err := m.src.ListFolders(ctx)
	if err != nil {
		return sum, fmt.Errorf("list source folders: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	progress.SetDescription("Checking destination folders")
	dstFolders, err := m.dst.ListFolders(ctx)
	if err != nil {
		return sum, fmt.Errorf("list destination folders: %w", err)
	}

	srcSep := separatorOf(srcFolders)
	dstSep := separatorOf(dstFolders)
	if len(dstFolders) == 0 {
		dstSep = srcSep
	}
	dirMap, err := m.directoryMap(srcFolders, NewPathMapper(srcSep, dstSep, m.opts.SeparatorSubstitute))
	if err != nil {
		return sum, err
	}
	sum.Folders = len(dirMap)
	if m.opts.Verbose {
		log.Printf("[sync] %d folder(s), separators %q -> %q, dry-run=%v", len(dirMap), srcSep, dstSep, m.opts.DryRun)
	}

	existing := make(map[string]bool, len(dstFolders))
	for _, f := range dstFolders {
		existing[f.Name] = true
	}
	missing := make(map[string]bool)
	for _, f := range dirMap {
		if !existing[f.Dest] {
			missing[f.Dest] = true
		}
	}

	if len(missing) > 0 {
		progress.SetDescription("Creating destination folders")
		progress.Reset(int64(len(missing)))
		created := make(map[string]bool, len(missing))
		for _, f := range dirMap {
			if !missing[f.Dest] || created[f.Dest] {
				continue
			}
			created[f.Dest] = true
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			if m.opts.Verbose {
				log.Printf("[folder] %s: create (dry-run=%v)", f.Dest, m.opts.DryRun)
			}
			if !m.opts.DryRun {
				if err := m.dst.CreateFolder(ctx, f.Dest); err != nil {
					return sum, fmt.Errorf("create %s: %w", f.Dest, err)
				}
			}
			sum.FoldersCreated++
			progress.Update(1)
		}
	}

	progress.SetDescription("Copying messages")
	progress.Reset(int64(len(dirMap)))

	inner := m.opts.Progress(MessageDataDescription)
	defer inner.Close()

	for _, f := range dirMap {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		progress.SetPostfix(folderLabel(f.Source, srcSep))
		progress.Update(1)
		if err := m.syncFolder(ctx, f, missing[f.Dest], inner, sum); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// directoryMap maps, sorts and filters the source folders.
func (m *MailboxSyncer) directoryMap(folders []Folder, mapper PathMapper) ([]FolderMapping, error) {
	dirMap := make([]FolderMapping, 0, len(folders))
	names := make([]string, 0, len(folders))
	for _, f := range folders {
		dirMap = append(dirMap, FolderMapping{Source: f.Name, Flags: f.Attributes, Dest: mapper.Map(f.Name)})
		names = append(names, f.Name)
	}
	sort.Slice(dirMap, func(i, j int) bool { return dirMap[i].Source < dirMap[j].Source })

	kept, err := Filter(m.opts.Rules, names)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]bool, len(kept))
	for _, n := range kept {
		keep[n] = true
	}
	filtered := dirMap[:0]
	for _, f := range dirMap {
		if keep[f.Source] {
			filtered = append(filtered, f)
		}
	}
	return filtered, nil
}

func (m *MailboxSyncer) syncFolder(ctx context.Context, f FolderMapping, missing bool, inner Progress, sum *Summary) error {
	if hasAttribute(f.Flags, `\Noselect`) || hasAttribute(f.Flags, `\NonExistent`) {
		if m.opts.Verbose {
			log.Printf("[folder] %s: not selectable, skipped", f.Source)
		}
		inner.Reset(0)
		return nil
	}

	destKeys := KeySet{}
	supported := NewFlagSet()
	if !(m.opts.DryRun && missing) {
		st, err := m.dst.SelectFolder(ctx, f.Dest, false)
		if err != nil {
			return fmt.Errorf("select %s on destination: %w", f.Dest, err)
		}
		supported = supportedFlags(st)
		if destKeys, err = collectKeys(ctx, m.dst); err != nil {
			return fmt.Errorf("%s on destination: %w", f.Dest, err)
		}
	}

	if _, err := m.src.SelectFolder(ctx, f.Source, true); err != nil {
		return fmt.Errorf("select %s on source: %w", f.Source, err)
	}
	plan, total, err := planTransfer(ctx, m.src, destKeys)
	if err != nil {
		return fmt.Errorf("%s on source: %w", f.Source, err)
	}
	sum.PlannedMessages += len(plan)
	sum.PlannedBytes += total
	if m.opts.Verbose {
		log.Printf("[folder] %s: %d message(s) to copy (%d bytes)", f.Source, len(plan), total)
	}

	inner.Reset(total)
	if m.opts.DryRun {
		for _, t := range plan {
			inner.Update(t.Size)
		}
		return nil
	}

	chunks := NewChunker(plan, m.opts.MaxChunkBytes)
	for chunk, ok := chunks.Next(); ok; chunk, ok = chunks.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgs, err := m.src.Fetch(ctx, chunk, FetchFlags|FetchInternalDate|FetchSize|FetchBody)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", f.Source, err)
		}
		for _, uid := range chunk {
			msg, ok := msgs[uid]
			if !ok {
				if m.opts.Verbose {
					log.Printf("[folder] %s: UID %d vanished before fetch, skipped", f.Source, uid)
				}
				continue
			}
			flags := ReconcileFlags(msg.Flags, supported)
			if err := m.dst.Append(ctx, f.Dest, msg.Body, flags, msg.InternalDate); err != nil {
				return fmt.Errorf("append to %s: %w", f.Dest, err)
			}
			sum.Appended++
			inner.Update(msg.Size)
		}
	}
	return nil
}

// folderLabel renders a path as "> > leaf", one marker per parent level.
func folderLabel(path, sep string) string {
	if sep == "" {
		return path
	}
	parts := strings.Split(path, sep)
	return strings.Repeat("> ", len(parts)-1) + parts[len(parts)-1]
}
