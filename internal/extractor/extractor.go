// Package extractor 把上传的文档转换成纯文本。
package extractor

import (
	"bytes"
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"edu-rag-go/internal/model"
	"edu-rag-go/pkg/errs"

	"golang.org/x/text/encoding/charmap"
)

// PDFExtractor 是 PDF 提取后端，生产环境使用 Tika。
type PDFExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// Extractor 按媒体类型分派到具体的提取实现。
type Extractor struct {
	pdf PDFExtractor
}

func New(pdf PDFExtractor) *Extractor {
	return &Extractor{pdf: pdf}
}

// Supports 判断是否支持某种媒体类型。
func (e *Extractor) Supports(kind model.MediaKind) bool {
	switch kind {
	case model.MediaTXT, model.MediaMarkdown, model.MediaDOCX:
		return true
	case model.MediaPDF:
		return e.pdf != nil
	}
	return false
}

// Extract 返回文档的纯文本。未知类型返回 UnsupportedFormat，内容损坏或为空返回 ExtractionError。
func (e *Extractor) Extract(ctx context.Context, data []byte, kind model.MediaKind, fileName string) (string, error) {
	const op = "extract"
	var (
		text string
		err  error
	)
	switch kind {
	case model.MediaTXT, model.MediaMarkdown:
		text = decodeText(data)
	case model.MediaDOCX:
		text, err = extractDOCX(data)
	case model.MediaPDF:
		if e.pdf == nil {
			return "", errs.Newf(errs.KindUnsupportedFormat, op, "未配置 PDF 提取服务")
		}
		text, err = e.pdf.ExtractText(ctx, bytes.NewReader(data), fileName)
	default:
		return "", errs.Newf(errs.KindUnsupportedFormat, op, "不支持的文件类型 %q", kind)
	}
	if err != nil {
		return "", errs.New(errs.KindExtraction, op, err)
	}

	text = normalize(text)
	if text == "" {
		return "", errs.Newf(errs.KindExtraction, op, "文件 %s 未提取到任何文本", fileName)
	}
	return text, nil
}

// decodeText 优先按 UTF-8 解码，不合法时按 Latin-1 解码。
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(out)
}

// normalize 统一换行符，去掉行尾空白，压缩连续的空行。
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")

	lines := strings.Split(text, "\n")
	var sb strings.Builder
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			blank++
			continue
		}
		if sb.Len() > 0 {
			if blank > 0 {
				sb.WriteString("\n\n")
			} else {
				sb.WriteString("\n")
			}
		}
		blank = 0
		sb.WriteString(line)
	}
	return sb.String()
}
