package vectorindex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"edu-rag-go/internal/model"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"
)

const (
	opAdd       = "add"
	opTombstone = "tombstone"
)

type fileRecord struct {
	Op    string            `json:"op"`
	Entry *model.IndexEntry `json:"entry,omitempty"`
	Seq   uint64            `json:"seq,omitempty"`
}

// FileStore 以追加写的 JSON Lines 文件持久化索引。
// 每条记录写入后立即 fsync；进程在写入中途崩溃时，文件末尾不完整的一行会在下次加载时被截掉。
type FileStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenFileStore 打开（必要时创建）日志文件。
func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建索引目录失败: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开索引文件失败: %w", err)
	}
	return &FileStore{path: path, f: f}, nil
}

func (s *FileStore) Load(_ context.Context) ([]model.IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("读取索引文件失败: %w", err)
	}
	r := bufio.NewReaderSize(s.f, 1<<20)

	byseq := make(map[uint64]model.IndexEntry)
	var order []uint64
	var offset int64
	lineNo := 0
	for {
		line, err := r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(bytes.TrimSpace(line)) > 0 {
				// 最后一行没有换行符，说明上次写到一半
				log.Warnf("[VectorIndex] 索引文件 %s 末尾存在不完整记录(%d 字节), 截断", s.path, len(line))
				if terr := s.f.Truncate(offset); terr != nil {
					return nil, fmt.Errorf("截断索引文件失败: %w", terr)
				}
			}
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取索引文件失败: %w", err)
		}
		lineNo++
		offset += int64(len(line))

		var rec fileRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, errs.Newf(errs.KindIndexCorruption, "filestore.load", "%s 第 %d 行无法解析: %v", s.path, lineNo, err)
		}
		switch rec.Op {
		case opAdd:
			if rec.Entry == nil {
				return nil, errs.Newf(errs.KindIndexCorruption, "filestore.load", "%s 第 %d 行缺少 entry", s.path, lineNo)
			}
			if _, dup := byseq[rec.Entry.Seq]; dup {
				return nil, errs.Newf(errs.KindIndexCorruption, "filestore.load", "%s 第 %d 行 seq %d 重复", s.path, lineNo, rec.Entry.Seq)
			}
			byseq[rec.Entry.Seq] = *rec.Entry
			order = append(order, rec.Entry.Seq)
		case opTombstone:
			if e, ok := byseq[rec.Seq]; ok {
				e.Live = false
				byseq[rec.Seq] = e
			}
		default:
			return nil, errs.Newf(errs.KindIndexCorruption, "filestore.load", "%s 第 %d 行未知操作 %q", s.path, lineNo, rec.Op)
		}
	}

	out := make([]model.IndexEntry, 0, len(order))
	for _, seq := range order {
		out = append(out, byseq[seq])
	}
	return out, nil
}

func (s *FileStore) Append(_ context.Context, e model.IndexEntry) error {
	return s.write(fileRecord{Op: opAdd, Entry: &e})
}

func (s *FileStore) Tombstone(_ context.Context, seq uint64) error {
	return s.write(fileRecord{Op: opTombstone, Seq: seq})
}

func (s *FileStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Truncate(0); err != nil {
		return fmt.Errorf("清空索引文件失败: %w", err)
	}
	return s.f.Sync()
}

// Close 关闭底层文件。
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

func (s *FileStore) write(rec fileRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化索引记录失败: %w", err)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(b); err != nil {
		return fmt.Errorf("写入索引文件失败: %w", err)
	}
	return s.f.Sync()
}
