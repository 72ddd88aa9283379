// Package accesslist implements the sorted, file-persisted set of
// authorized sender identifiers consulted on every inbound update.
package accesslist

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/graydnsapconet/tgbot/internal/types"
)

// MaxAccess is the maximum number of retained identifiers.
const MaxAccess = 256

// ErrFull is returned by Add when the list already holds MaxAccess entries.
var ErrFull = errors.New("accesslist: full")

// List is a sorted, ascending, deduplicated set of sender identifiers,
// persisted atomically to a file on every mutation.
type List struct {
	mu   sync.RWMutex
	ids  []types.SenderID
	path string
	log  *zap.Logger
}

// Load reads path, creating an empty 0600 file if it does not exist. Lines
// that do not parse as a decimal int64 are skipped. Entries past MaxAccess
// are dropped. The result is sorted ascending with duplicates removed.
func Load(path string, log *zap.Logger) (*List, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &List{path: path, log: log}

	f, err := os.OpenFile(path, os.O_RDONLY, 0o600)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			return nil, fmt.Errorf("accesslist: create %s: %w", path, err)
		}
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("accesslist: open %s: %w", path, err)
	}
	defer f.Close()

	var ids []types.SenderID
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		v, err := strconv.ParseInt(scanner.Text(), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, types.SenderID(v))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("accesslist: read %s: %w", path, err)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ids = dedup(ids)
	if len(ids) > MaxAccess {
		l.log.Warn("accesslist: truncating entries past max",
			zap.Int("dropped", len(ids)-MaxAccess))
		ids = ids[:MaxAccess]
	}
	l.ids = ids
	return l, nil
}

func dedup(ids []types.SenderID) []types.SenderID {
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || id != ids[i-1] {
			out = append(out, id)
		}
	}
	return out
}

// Contains reports whether id is present, via binary search under the read
// lock.
func (l *List) Contains(id types.SenderID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, found := l.search(id)
	return found
}

// Count returns the number of entries.
func (l *List) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

// search returns the insertion index and whether id is present exactly.
func (l *List) search(id types.SenderID) (int, bool) {
	i := sort.Search(len(l.ids), func(i int) bool { return l.ids[i] >= id })
	return i, i < len(l.ids) && l.ids[i] == id
}

// Add inserts id, preserving ascending order, then atomically saves the
// file. Returns 0 on insert, 1 if id was already present, -1 if the list is
// already at MaxAccess (ErrFull).
func (l *List) Add(id types.SenderID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, found := l.search(id)
	if found {
		return 1, nil
	}
	if len(l.ids) >= MaxAccess {
		return -1, ErrFull
	}

	l.ids = append(l.ids, 0)
	copy(l.ids[idx+1:], l.ids[idx:])
	l.ids[idx] = id

	if err := l.saveLocked(); err != nil {
		return 0, err
	}
	return 0, nil
}

// Remove deletes id, then atomically saves the file. Returns 0 on success,
// 1 if id was not present.
func (l *List) Remove(id types.SenderID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, found := l.search(id)
	if !found {
		return 1, nil
	}
	l.ids = append(l.ids[:idx], l.ids[idx+1:]...)

	if err := l.saveLocked(); err != nil {
		return 0, err
	}
	return 0, nil
}

// saveLocked writes a sibling *.tmp file with mode 0600 and renames it over
// path, so readers only ever observe a fully-written file (rename is atomic
// on POSIX filesystems). Caller must hold the write lock.
func (l *List) saveLocked() error {
	tmp := l.path + ".tmp"
	var buf []byte
	for _, id := range l.ids {
		buf = append(buf, []byte(strconv.FormatInt(int64(id), 10))...)
		buf = append(buf, '\n')
	}
	if err := os.WriteFile(tmp, buf, 0o600); err != nil {
		return fmt.Errorf("accesslist: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("accesslist: rename %s to %s: %w", tmp, l.path, err)
	}
	return nil
}
