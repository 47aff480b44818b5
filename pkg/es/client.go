// Package es 提供了与 Elasticsearch 交互的客户端功能，用作向量索引的持久化后端。
package es

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"edu-rag-go/internal/config"
	"edu-rag-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	log.Infof("Elasticsearch 客户端初始化成功, 地址: %s", esCfg.Addresses)
	return nil
}

// entryMapping 是索引条目的映射。向量只做存储，相似度计算在内存中完成。
func entryMapping(dim int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"seq": { "type": "long" },
				"provenance_id": { "type": "long" },
				"kind": { "type": "keyword" },
				"scope": {
					"properties": {
						"owner_id": { "type": "long" },
						"subject_id": { "type": "long" },
						"unit_id": { "type": "long" },
						"topic_id": { "type": "long" }
					}
				},
				"vector": { "type": "dense_vector", "dims": %d, "index": false },
				"live": { "type": "boolean" },
				"created_at": { "type": "date" }
			}
		}
	}`, dim)
}
