package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"edu-rag-go/internal/model"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// IndexStore 把向量索引条目保存在一个 Elasticsearch 索引中，文档 id 为条目的 seq。
// 它实现了 vectorindex.Store。
type IndexStore struct {
	client    *elasticsearch.Client
	indexName string
	dim       int
	pageSize  int
}

func NewIndexStore(client *elasticsearch.Client, indexName string, dim int) *IndexStore {
	return &IndexStore{client: client, indexName: indexName, dim: dim, pageSize: 500}
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它
func (s *IndexStore) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.indexName}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", s.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", s.indexName, res.StatusCode)
	}

	res, err = s.client.Indices.Create(
		s.indexName,
		s.client.Indices.Create.WithBody(strings.NewReader(entryMapping(s.dim))),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.indexName, res.String())
	}
	log.Infof("索引 '%s' 创建成功", s.indexName)
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
			Sort   []interface{}   `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

// Load 按 seq 升序分页读出全部条目（包括已标记删除的）。
func (s *IndexStore) Load(ctx context.Context) ([]model.IndexEntry, error) {
	var (
		out   []model.IndexEntry
		after *uint64
	)
	for {
		query := map[string]interface{}{
			"size":  s.pageSize,
			"sort":  []interface{}{map[string]string{"seq": "asc"}},
			"query": map[string]interface{}{"match_all": map[string]interface{}{}},
		}
		if after != nil {
			query["search_after"] = []uint64{*after}
		}
		body, err := json.Marshal(query)
		if err != nil {
			return nil, err
		}
		req := esapi.SearchRequest{Index: []string{s.indexName}, Body: bytes.NewReader(body)}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return nil, err
		}
		var page searchResponse
		err = decode(res, &page)
		if err != nil {
			return nil, err
		}
		if len(page.Hits.Hits) == 0 {
			return out, nil
		}
		for _, h := range page.Hits.Hits {
			var e model.IndexEntry
			if err := json.Unmarshal(h.Source, &e); err != nil {
				return nil, errs.New(errs.KindIndexCorruption, "es.load", fmt.Errorf("%s: 无法解析条目: %w", s.indexName, err))
			}
			out = append(out, e)
			seq := e.Seq
			after = &seq
		}
		if len(page.Hits.Hits) < s.pageSize {
			return out, nil
		}
	}
}

// Append 写入一条新条目，等待刷新后返回，保证重启后可见。
func (s *IndexStore) Append(ctx context.Context, e model.IndexEntry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      s.indexName,
		DocumentID: strconv.FormatUint(e.Seq, 10),
		Body:       bytes.NewReader(body),
		Refresh:    "wait_for",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	return decode(res, nil)
}

// Tombstone 把条目标记为删除，条目本身保留。
func (s *IndexStore) Tombstone(ctx context.Context, seq uint64) error {
	req := esapi.UpdateRequest{
		Index:      s.indexName,
		DocumentID: strconv.FormatUint(seq, 10),
		Body:       strings.NewReader(`{"doc":{"live":false}}`),
		Refresh:    "wait_for",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	return decode(res, nil)
}

// Reset 删除索引中的全部条目。
func (s *IndexStore) Reset(ctx context.Context) error {
	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:   []string{s.indexName},
		Body:    strings.NewReader(`{"query":{"match_all":{}}}`),
		Refresh: &refresh,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	if err := decode(res, nil); err != nil {
		return err
	}
	log.Infof("[IndexStore] 索引 '%s' 已清空", s.indexName)
	return nil
}

func decode(res *esapi.Response, v interface{}) error {
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("elasticsearch 返回错误, status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(v)
}
