package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"edu-rag-go/pkg/retry"
)

// Extractor 是 PDF 文本提取能力，*Client 满足该接口。
type Extractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// Resilient 给 Tika 调用加上超时和有限次重试。请求体会先读入内存，每次重试重新发送。
type Resilient struct {
	next   Extractor
	caller *retry.Caller
}

func NewResilient(next Extractor, caller *retry.Caller) *Resilient {
	return &Resilient{next: next, caller: caller}
}

func (r *Resilient) ExtractText(ctx context.Context, fileReader io.Reader, fileName string) (string, error) {
	data, err := io.ReadAll(fileReader)
	if err != nil {
		return "", fmt.Errorf("读取待提取文件失败: %w", err)
	}
	var text string
	err = r.caller.Do(ctx, "tika", func(ctx context.Context) error {
		t, err := r.next.ExtractText(ctx, bytes.NewReader(data), fileName)
		if err != nil {
			return err
		}
		text = t
		return nil
	})
	return text, err
}
